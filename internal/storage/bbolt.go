package storage

import (
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"hitch/internal/auth"
	"hitch/internal/models"
)

var (
	bucketCredentials   = []byte("credentials")
	bucketRides         = []byte("rides")
	bucketRideMessages  = []byte("ride_messages")
	bucketSubscriptions = []byte("push_subscriptions")
)

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketCredentials, bucketRides, bucketRideMessages, bucketSubscriptions} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// UpsertCredentials stores new or updated account credentials.
func (s *BboltStorage) UpsertCredentials(credentials auth.UserCredentials) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		dbCreds := &DBCredentials{
			ID:                  credentials.ID,
			UserName:            credentials.UserName,
			DisplayName:         credentials.DisplayName,
			Role:                credentials.Role,
			PasswordHash:        credentials.PasswordHash,
			FailedLoginAttempts: credentials.FailedLoginAttempts,
			LastAttemptTime:     credentials.LastAttemptTime,
		}
		data, err := dbCreds.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbCreds.Key(), data)
	})
}

// ListCredentials returns all account credentials stored in the database.
func (s *BboltStorage) ListCredentials() ([]auth.UserCredentials, error) {
	var credentials []auth.UserCredentials
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		return b.ForEach(func(k, v []byte) error {
			var dbCreds DBCredentials
			if err := dbCreds.UnmarshalBinary(v); err != nil {
				return err
			}
			credentials = append(credentials, auth.UserCredentials{
				User: models.User{
					ID:          dbCreds.ID,
					UserName:    dbCreds.UserName,
					DisplayName: dbCreds.DisplayName,
					Role:        dbCreds.Role,
				},
				PasswordHash:        dbCreds.PasswordHash,
				FailedLoginAttempts: dbCreds.FailedLoginAttempts,
				LastAttemptTime:     dbCreds.LastAttemptTime,
			})
			return nil
		})
	})
	return credentials, err
}

// UpsertRide saves the canonical ride state.
func (s *BboltStorage) UpsertRide(ride models.Ride) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRides)
		dbRide := &DBRide{
			ID:          ride.ID,
			Kind:        string(ride.Kind),
			Status:      ride.Status,
			PassengerID: ride.PassengerID,
			DriverID:    ride.DriverID,
			UpdatedAt:   ride.UpdatedAt,
		}
		data, err := dbRide.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbRide.Key(), data)
	})
}

// GetRide returns the canonical state of one ride.
func (s *BboltStorage) GetRide(id string) (models.Ride, error) {
	var ride models.Ride
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRides).Get([]byte(id))
		if data == nil {
			return models.ErrNotFound
		}
		var dbRide DBRide
		if err := dbRide.UnmarshalBinary(data); err != nil {
			return err
		}
		ride = models.Ride{
			ID:          dbRide.ID,
			Kind:        models.RideKind(dbRide.Kind),
			Status:      dbRide.Status,
			PassengerID: dbRide.PassengerID,
			DriverID:    dbRide.DriverID,
			UpdatedAt:   dbRide.UpdatedAt,
		}
		return nil
	})
	return ride, err
}

// AppendRideMessage persists a chat message under its ride, assigning the
// next sequence number within that ride.
func (s *BboltStorage) AppendRideMessage(message models.RideMessage) (models.RideMessage, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if message.RideID == "" {
			return errors.New("message missing rideID")
		}

		rideBucket, err := tx.Bucket(bucketRideMessages).CreateBucketIfNotExists([]byte(message.RideID))
		if err != nil {
			return fmt.Errorf("failed to create ride message bucket: %w", err)
		}

		seq, err := rideBucket.NextSequence()
		if err != nil {
			return err
		}
		message.Seq = int64(seq)

		dbMessage := &DBRideMessage{
			Seq:       message.Seq,
			RideID:    message.RideID,
			UserID:    message.UserID,
			Content:   message.Content,
			Timestamp: message.Timestamp,
		}
		data, err := dbMessage.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		return rideBucket.Put(dbMessage.Key(), data)
	})
	if err != nil {
		return models.RideMessage{}, err
	}
	return message, nil
}

// ListRideMessages returns the messages of one ride in sequence order.
func (s *BboltStorage) ListRideMessages(rideID string) ([]models.RideMessage, error) {
	var messages []models.RideMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		rideBucket := tx.Bucket(bucketRideMessages).Bucket([]byte(rideID))
		if rideBucket == nil {
			return nil
		}
		return rideBucket.ForEach(func(k, v []byte) error {
			var dbMessage DBRideMessage
			if err := dbMessage.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, models.RideMessage{
				Seq:       dbMessage.Seq,
				RideID:    dbMessage.RideID,
				UserID:    dbMessage.UserID,
				Content:   dbMessage.Content,
				Timestamp: dbMessage.Timestamp,
			})
			return nil
		})
	})
	return messages, err
}

// UpsertSubscription stores a push subscription for a user. A user may
// hold one subscription per device endpoint.
func (s *BboltStorage) UpsertSubscription(sub DBPushSubscription) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := sub.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSubscriptions).Put(sub.Key(), data)
	})
}

// ListSubscriptions returns all push subscriptions of one user.
func (s *BboltStorage) ListSubscriptions(userID string) ([]DBPushSubscription, error) {
	var subs []DBPushSubscription
	prefix := []byte(userID + "|")
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketSubscriptions).Cursor()
		for k, v := c.Seek(prefix); k != nil && len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix); k, v = c.Next() {
			var sub DBPushSubscription
			if err := sub.UnmarshalBinary(v); err != nil {
				return err
			}
			subs = append(subs, sub)
		}
		return nil
	})
	return subs, err
}

// DeleteSubscription removes a dead endpoint.
func (s *BboltStorage) DeleteSubscription(userID, endpoint string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		sub := DBPushSubscription{UserID: userID, Endpoint: endpoint}
		return tx.Bucket(bucketSubscriptions).Delete(sub.Key())
	})
}
