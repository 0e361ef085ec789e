package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"hitch/internal/models"
)

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type tokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// Connection shuttles envelopes between one websocket and the hub. The
// first inbound event must be authenticate; until it succeeds nothing is
// routed and no room can be joined.
type Connection struct {
	ws         wsConnection
	hub        *Hub
	auth       tokenVerifier
	opts       Options
	userID     string
	connID     string
	fromClient chan models.Envelope
	fromServer chan models.ServerEvent
	errorCh    chan error
}

func NewConnection(hub *Hub, auth tokenVerifier, ws wsConnection, opts Options) *Connection {
	return &Connection{
		ws:         ws,
		hub:        hub,
		auth:       auth,
		opts:       opts,
		fromClient: make(chan models.Envelope),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		// Teardown must run on every disconnect path so no room keeps a
		// dangling membership.
		if c.connID != "" {
			c.hub.Unregister(c.connID)
		}
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		var env models.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			return err
		}
		select {
		case c.fromClient <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case env := <-c.fromClient:
			if err := c.processClientEvent(ctx, env); err != nil {
				return err
			}
		case ev := <-c.fromServer:
			if err := c.ws.WriteJSON(ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) processClientEvent(ctx context.Context, env models.Envelope) error {
	if c.connID == "" {
		return c.handleAuthenticate(env)
	}

	switch env.Type {
	case models.EventJoinRide:
		payload, err := env.DecodePayload()
		if err != nil {
			return c.sendError(err)
		}
		p := payload.(*models.JoinRidePayload)
		if err := c.hub.Join(c.connID, p.RideID); err != nil {
			return c.sendError(err)
		}
	case models.EventLeaveRide:
		payload, err := env.DecodePayload()
		if err != nil {
			return c.sendError(err)
		}
		p := payload.(*models.LeaveRidePayload)
		c.hub.Leave(c.connID, p.RideID)
	default:
		if err := c.hub.Route(ctx, c.connID, env); err != nil {
			// Routing errors go back to the sender only, never to the room.
			return c.sendError(err)
		}
	}
	return nil
}

func (c *Connection) handleAuthenticate(env models.Envelope) error {
	reject := func() error {
		return c.ws.WriteJSON(models.ServerEvent{
			Type:      models.ServerEventAuthenticated,
			Timestamp: time.Now().Unix(),
			Data:      &models.AuthenticatedPayload{Success: false},
		})
	}

	if env.Type != models.EventAuthenticate {
		if err := c.sendError(errors.New("authenticate first")); err != nil {
			return err
		}
		return nil
	}

	payload, err := env.DecodePayload()
	if err != nil {
		return reject()
	}
	p := payload.(*models.AuthenticatePayload)

	userID, err := c.auth.VerifyToken(p.Token)
	if err != nil || (p.UserID != "" && p.UserID != userID) {
		return reject()
	}

	c.userID = userID
	c.connID, c.fromServer = c.hub.Register(userID, c.opts)

	return c.ws.WriteJSON(models.ServerEvent{
		Type:      models.ServerEventAuthenticated,
		Timestamp: time.Now().Unix(),
		Data:      &models.AuthenticatedPayload{Success: true, UserID: userID},
	})
}

func (c *Connection) sendError(routeErr error) error {
	return c.ws.WriteJSON(models.ServerEvent{
		Type:      models.ServerEventError,
		Timestamp: time.Now().Unix(),
		Error:     routeErr.Error(),
	})
}
