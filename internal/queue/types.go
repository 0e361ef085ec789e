package queue

import (
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"

	"hitch/internal/models"
)

type DBAction struct {
	ID         string `msgpack:"id"`
	Seq        uint64 `msgpack:"seq"`
	Endpoint   string `msgpack:"endpoint"`
	Method     string `msgpack:"method"`
	Payload    []byte `msgpack:"payload"`
	EntityType string `msgpack:"entityType"`
	EntityID   string `msgpack:"entityId"`
	Priority   string `msgpack:"priority"`
	EnqueuedAt int64  `msgpack:"enqueuedAt"`
	RetryCount int    `msgpack:"retryCount"`
	MaxRetries int    `msgpack:"maxRetries"`
}

func (a *DBAction) Key() []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, a.Seq)
	return key
}

func (a *DBAction) MarshalBinary() (data []byte, err error) {
	type alias DBAction
	return msgpack.Marshal((*alias)(a))
}

func (a *DBAction) UnmarshalBinary(data []byte) error {
	type alias DBAction
	return msgpack.Unmarshal(data, (*alias)(a))
}

func toDB(item models.SyncItem) *DBAction {
	return &DBAction{
		ID:         item.ID,
		Seq:        item.Seq,
		Endpoint:   item.Endpoint,
		Method:     item.Method,
		Payload:    item.Payload,
		EntityType: string(item.EntityType),
		EntityID:   item.EntityID,
		Priority:   string(item.Priority),
		EnqueuedAt: item.EnqueuedAt,
		RetryCount: item.RetryCount,
		MaxRetries: item.MaxRetries,
	}
}

func (a *DBAction) toModel() models.SyncItem {
	return models.SyncItem{
		ID:         a.ID,
		Seq:        a.Seq,
		Endpoint:   a.Endpoint,
		Method:     a.Method,
		Payload:    a.Payload,
		EntityType: models.EntityType(a.EntityType),
		EntityID:   a.EntityID,
		Priority:   models.Priority(a.Priority),
		EnqueuedAt: a.EnqueuedAt,
		RetryCount: a.RetryCount,
		MaxRetries: a.MaxRetries,
	}
}
