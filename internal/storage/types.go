package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBCredentials struct {
	ID                  string `msgpack:"id"`
	UserName            string `msgpack:"userName"`
	DisplayName         string `msgpack:"displayName"`
	Role                string `msgpack:"role"`
	PasswordHash        string `msgpack:"passwordHash"`
	FailedLoginAttempts int64  `msgpack:"failedLoginAttempts"`
	LastAttemptTime     int64  `msgpack:"lastAttemptTime"`
}

func (c *DBCredentials) Key() []byte {
	return []byte(c.ID)
}

func (c *DBCredentials) MarshalBinary() (data []byte, err error) {
	type alias DBCredentials
	return msgpack.Marshal((*alias)(c))
}

func (c *DBCredentials) UnmarshalBinary(data []byte) error {
	type alias DBCredentials
	return msgpack.Unmarshal(data, (*alias)(c))
}

type DBRide struct {
	ID          string `msgpack:"id"`
	Kind        string `msgpack:"kind"`
	Status      string `msgpack:"status"`
	PassengerID string `msgpack:"passengerId"`
	DriverID    string `msgpack:"driverId"`
	UpdatedAt   int64  `msgpack:"updatedAt"`
}

func (r *DBRide) Key() []byte {
	return []byte(r.ID)
}

func (r *DBRide) MarshalBinary() (data []byte, err error) {
	type alias DBRide
	return msgpack.Marshal((*alias)(r))
}

func (r *DBRide) UnmarshalBinary(data []byte) error {
	type alias DBRide
	return msgpack.Unmarshal(data, (*alias)(r))
}

type DBRideMessage struct {
	Seq       int64  `msgpack:"seq"`
	RideID    string `msgpack:"rideId"`
	UserID    string `msgpack:"userId"`
	Content   string `msgpack:"content"`
	Timestamp int64  `msgpack:"timestamp"`
}

func (m *DBRideMessage) Key() []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(m.Seq))
	return key
}

func (m *DBRideMessage) MarshalBinary() (data []byte, err error) {
	type alias DBRideMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBRideMessage) UnmarshalBinary(data []byte) error {
	type alias DBRideMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

type DBPushSubscription struct {
	UserID   string `msgpack:"userId"`
	Endpoint string `msgpack:"endpoint"`
	P256dh   string `msgpack:"p256dh"`
	Auth     string `msgpack:"auth"`
}

func (s *DBPushSubscription) Key() []byte {
	return []byte(s.UserID + "|" + s.Endpoint)
}

func (s *DBPushSubscription) MarshalBinary() (data []byte, err error) {
	type alias DBPushSubscription
	return msgpack.Marshal((*alias)(s))
}

func (s *DBPushSubscription) UnmarshalBinary(data []byte) error {
	type alias DBPushSubscription
	return msgpack.Unmarshal(data, (*alias)(s))
}
