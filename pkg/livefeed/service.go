package livefeed

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/NotCoffee418/sml_smart_meter/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Err string

func (e Err) Error() string {
	return string(e)
}

const ErrGaveUp = Err("live feed unreachable, giving up")

type retryPolicy struct {
	maxRetries     int
	baseRetryDelay time.Duration
	maxRetryDelay  time.Duration
	readTimeout    time.Duration
	pingInterval   time.Duration
}

var defaultPolicy = retryPolicy{
	maxRetries:     10,
	baseRetryDelay: 2 * time.Second,
	maxRetryDelay:  60 * time.Second,
	readTimeout:    10 * time.Second,
	pingInterval:   5 * time.Second,
}

// Manage the websocket connection to the reader's live feed and call handle
// for each reading. Returns nil when ctx is cancelled and ErrGaveUp after too
// many failed connection attempts.
func StartListener(ctx context.Context, host string, handle func(report *types.ReadingReport), logger *logrus.Entry) error {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}
	return listen(ctx, u, handle, defaultPolicy, logger.WithField("component", "livefeed"))
}

func listen(ctx context.Context, u url.URL, handle func(report *types.ReadingReport), policy retryPolicy, logger *logrus.Entry) error {
	retryCount := 0

	for {
		if ctx.Err() != nil {
			logger.Info("Shutting down live feed listener")
			return nil
		}

		if retryCount > 0 {
			// Calculate retry delay with exponential backoff
			retryDelay := time.Duration(1<<(retryCount-1)) * policy.baseRetryDelay
			if retryDelay > policy.maxRetryDelay {
				retryDelay = policy.maxRetryDelay
			}
			logger.Infof("Retrying connection in %v... (attempt %d/%d)", retryDelay, retryCount+1, policy.maxRetries)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				logger.Info("Shutdown requested during retry wait")
				return nil
			}
		}

		logger.Infof("Connecting to %s", u.String())

		dialer := *websocket.DefaultDialer
		dialer.HandshakeTimeout = 10 * time.Second
		c, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			logger.WithError(err).Warn("Connection failed")
			retryCount++
			if retryCount >= policy.maxRetries {
				logger.Errorf("Max retries (%d) reached. Giving up.", policy.maxRetries)
				return fmt.Errorf("%w: %v", ErrGaveUp, err)
			}
			continue
		}

		logger.Info("Connected! Accepting meter readings.")

		// Reset retry count on successful connection
		retryCount = 0

		connectionBroken := handleConnection(ctx, c, handle, policy, logger)
		c.Close()

		if !connectionBroken {
			return nil
		}
		logger.Warn("Connection lost, will retry...")
		retryCount = 1
	}
}

// handleConnection reads reports until the connection breaks (true) or ctx
// is cancelled (false).
func handleConnection(
	ctx context.Context,
	c *websocket.Conn,
	handle func(report *types.ReadingReport),
	policy retryPolicy,
	logger *logrus.Entry,
) bool {
	done := make(chan struct{})

	// Set read deadline to detect dead connections
	c.SetReadDeadline(time.Now().Add(policy.readTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(policy.readTimeout))
	})

	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.WithError(err).Warn("WebSocket error")
				} else {
					logger.WithError(err).Info("Connection closed")
				}
				return
			}

			c.SetReadDeadline(time.Now().Add(policy.readTimeout))

			if messageType != websocket.TextMessage {
				logger.Debugf("Received unexpected message type: %d", messageType)
				continue
			}
			if report := types.ReadingReportFromJsonBytes(message); report != nil {
				handle(report)
			} else {
				logger.Warnf("Failed to parse meter reading: %s", string(message))
			}
		}
	}()

	// Send periodic pings to keep connection alive
	ticker := time.NewTicker(policy.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return true
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				logger.WithError(err).Warn("Failed to send ping")
			}
		case <-ctx.Done():
			logger.Info("Shutdown requested, closing connection...")
			err := c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			if err != nil {
				logger.WithError(err).Warn("Error sending close message")
			}

			// Wait for close confirmation or timeout
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return false
		}
	}
}
