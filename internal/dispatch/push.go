package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// PushNotifier delivers assignment notices: a live websocket session first,
// falling back to an HTTP webhook when one is configured.
type PushNotifier struct {
	WS       *WSRegistry
	Endpoint string
	Client   *http.Client
}

func NewPushNotifier(ws *WSRegistry, endpoint string) *PushNotifier {
	return &PushNotifier{
		WS:       ws,
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 3 * time.Second},
	}
}

func (p *PushNotifier) RideAssigned(driverID string, notice models.AssignmentNotice) error {
	if p.WS != nil {
		if err := p.WS.RideAssigned(driverID, notice); err == nil {
			return nil
		}
	}
	if p.Endpoint == "" {
		return ErrNoSession
	}
	b, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	resp, err := p.Client.Post(p.Endpoint, "application/json", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
