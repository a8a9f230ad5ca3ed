package mqtt

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/flybeeper/track-filter/internal/config"
	"github.com/flybeeper/track-filter/internal/metrics"
	"github.com/flybeeper/track-filter/internal/models"
	"github.com/flybeeper/track-filter/pkg/utils"
)

// MessageHandler обрабатывает декодированную позицию из MQTT
type MessageHandler func(position *models.Position) error

// Client MQTT клиент, принимающий декодированные позиции от
// протокольных шлюзов
type Client struct {
	client    mqtt.Client
	config    *config.MQTTConfig
	logger    *utils.Logger
	parser    *Parser
	handler   MessageHandler
	connected bool
	mu        sync.RWMutex
}

// NewClient создает новый MQTT клиент
func NewClient(cfg *config.MQTTConfig, logger *utils.Logger, handler MessageHandler) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	c := &Client{
		config:  cfg,
		logger:  logger.WithField("component", "mqtt"),
		parser:  NewParser(logger),
		handler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.URL)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(cfg.CleanSession)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	// Порядок в пределах топика важен: позиции одного устройства
	// должны обрабатываться в порядке прихода
	opts.SetOrderMatters(true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()

		c.logger.WithField("broker", cfg.URL).Info("Connected to MQTT broker")
		metrics.MQTTConnectionStatus.Set(1)

		// Переподписка после каждого (пере)подключения
		if token := client.Subscribe(cfg.TopicPrefix, 1, c.onMessage); token.Wait() && token.Error() != nil {
			c.logger.WithFields(map[string]interface{}{
				"topic": cfg.TopicPrefix,
				"error": token.Error(),
			}).Error("Failed to subscribe to position topic")
		}
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		c.logger.WithField("error", err).Warn("MQTT connection lost")
		metrics.MQTTConnectionStatus.Set(0)
	})

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// Connect подключается к MQTT брокеру
func (c *Client) Connect() error {
	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

// Disconnect отключается от MQTT брокера
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
	metrics.MQTTConnectionStatus.Set(0)
}

// IsConnected сообщает состояние подключения
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) onMessage(client mqtt.Client, msg mqtt.Message) {
	metrics.MQTTMessagesReceived.WithLabelValues(msg.Topic()).Inc()

	position, err := c.parser.Parse(msg.Payload())
	if err != nil {
		metrics.MQTTParseErrors.Inc()
		c.logger.WithFields(map[string]interface{}{
			"topic": msg.Topic(),
			"error": err,
		}).Warn("Failed to parse position message")
		return
	}

	if err := c.handler(position); err != nil {
		c.logger.WithFields(map[string]interface{}{
			"device_id": position.DeviceID,
			"error":     err,
		}).Error("Failed to process position")
	}
}
