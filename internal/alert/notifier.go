package alert

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/aerosense-io/aerosense-core/internal/infrastructure/logging"
)

// LogNotifier writes alerts to the log. Used when push delivery is
// disabled, and as the fallback target in development.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

func (n *LogNotifier) Notify(_ context.Context, a Alert) error {
	n.logger.Warn("ALERT",
		"channel", a.Channel,
		"device_id", a.DeviceID,
		"value", a.Value,
	)
	return nil
}

// FCMNotifier pushes alerts through Firebase Cloud Messaging.
//
// Delivery is topic-based: every mobile client of this installation
// subscribes to the site topic, so the relay never tracks device tokens.
type FCMNotifier struct {
	client *messaging.Client
	topic  string
	logger *logging.Logger
}

// NewFCMNotifier initialises the Firebase messaging client.
//
// topic is the site-scoped FCM topic clients subscribe to.
// credentialsFile may be empty to use application default credentials.
func NewFCMNotifier(ctx context.Context, credentialsFile string, topic string, logger *logging.Logger) (*FCMNotifier, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening messaging client: %w", err)
	}

	return &FCMNotifier{
		client: client,
		topic:  topic,
		logger: logger.With("component", "notifier"),
	}, nil
}

func (n *FCMNotifier) Notify(ctx context.Context, a Alert) error {
	title, body := notificationText(a)

	msg := &messaging.Message{
		Topic: n.topic,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: map[string]string{
			"device_id": a.DeviceID,
			"channel":   string(a.Channel),
			"value":     fmt.Sprintf("%g", a.Value),
		},
	}

	id, err := n.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("sending push notification: %w", err)
	}

	n.logger.Debug("notification sent", "message_id", id, "channel", a.Channel)
	return nil
}

func notificationText(a Alert) (title, body string) {
	switch a.Channel {
	case ChannelCritical:
		return "CRITICAL: smoke and gas detected",
			fmt.Sprintf("Sensor %s reports smoke together with dangerous gas levels. Check immediately.", a.DeviceID)
	case ChannelSmoke:
		return "Smoke detected",
			fmt.Sprintf("Sensor %s reports a smoke level of %g.", a.DeviceID, a.Value)
	default:
		return "Air quality warning",
			fmt.Sprintf("Sensor %s reports poor air quality (%g).", a.DeviceID, a.Value)
	}
}
