package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DeviceState состояние симулированного устройства для реалистичного
// движения
type DeviceState struct {
	DeviceID  string
	Latitude  float64
	Longitude float64
	Speed     float64
	Course    float64
}

// envelope конверт декодированной позиции, как его публикуют
// протокольные шлюзы
type envelope struct {
	DeviceID   string                 `json:"device_id"`
	Time       time.Time              `json:"time"`
	Valid      bool                   `json:"valid"`
	Latitude   float64                `json:"lat"`
	Longitude  float64                `json:"lon"`
	Altitude   float64                `json:"alt"`
	Speed      float64                `json:"speed"`
	Course     float64                `json:"course"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

func main() {
	var (
		brokerURL  = flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
		topic      = flag.String("topic", "tf/positions/sim", "Topic to publish positions to")
		devices    = flag.Int("devices", 5, "Number of simulated devices")
		rate       = flag.Duration("rate", time.Second, "Publish interval per device")
		noiseRatio = flag.Float64("noise", 0.1, "Fraction of garbage positions (invalid fix, zero coords, teleports)")
		alarmRatio = flag.Float64("alarms", 0.02, "Fraction of positions carrying an alarm attribute")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	)
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	opts := mqtt.NewClientOptions()
	opts.AddBroker(*brokerURL)
	opts.SetClientID(fmt.Sprintf("position-publisher-%d", os.Getpid()))
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("Failed to connect to broker: %v", token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("Connected to %s, publishing to %s", *brokerURL, *topic)

	states := make([]*DeviceState, *devices)
	for i := range states {
		states[i] = &DeviceState{
			DeviceID:  fmt.Sprintf("86169303%07d", i),
			Latitude:  46.0 + rng.Float64(),
			Longitude: 8.0 + rng.Float64(),
			Speed:     20 + rng.Float64()*60,
			Course:    rng.Float64() * 360,
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*rate)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			log.Println("Stopping publisher")
			return
		case <-ticker.C:
			for _, st := range states {
				publish(client, *topic, rng, st, *noiseRatio, *alarmRatio)
			}
		}
	}
}

func publish(client mqtt.Client, topic string, rng *rand.Rand, st *DeviceState, noiseRatio, alarmRatio float64) {
	// Простая симуляция движения: смещение по курсу
	st.Latitude += (st.Speed / 111000) * (1.0 / 3600) * 10
	st.Longitude += rng.Float64() * 0.0001

	env := envelope{
		DeviceID:  st.DeviceID,
		Time:      time.Now(),
		Valid:     true,
		Latitude:  st.Latitude,
		Longitude: st.Longitude,
		Altitude:  430,
		Speed:     st.Speed,
		Course:    st.Course,
	}

	// Подмешиваем мусор, который должен отсекать фильтр
	if rng.Float64() < noiseRatio {
		switch rng.Intn(3) {
		case 0:
			env.Valid = false
		case 1:
			env.Latitude, env.Longitude = 0, 0
		case 2:
			env.Latitude += 5 // телепортация на ~550 км
		}
	}

	if rng.Float64() < alarmRatio {
		env.Attributes = map[string]interface{}{"alarm": "general"}
	}

	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("Failed to marshal envelope: %v", err)
		return
	}

	if token := client.Publish(topic, 1, false, data); token.Wait() && token.Error() != nil {
		log.Printf("Failed to publish: %v", token.Error())
	}
}
