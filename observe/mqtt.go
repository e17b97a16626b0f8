/* Copyright 2024 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package observe

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher is the part of an mqtt.Client that an MQTTSink uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes each Event as JSON.
//
// Publishing doesn't wait for acknowledgement.  Publication errors
// are logged.
type MQTTSink struct {
	Client Publisher

	// Topic is where events go.  If Split is true, the topic is
	// extended with "/OP/FIELD".
	Topic string
	Split bool

	QoS      byte
	Retained bool

	// Timeout limits how long to wait (in the background) for a
	// publication to complete.
	Timeout time.Duration
}

func (s *MQTTSink) topic(e *Event) string {
	if !s.Split {
		return s.Topic
	}
	return s.Topic + "/" + string(e.Op) + "/" + e.Field
}

func (s *MQTTSink) Observe(e *Event) {
	topic := s.topic(e)
	token := s.Client.Publish(topic, s.QoS, s.Retained, e.JSON())
	if token == nil {
		return
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	go func() {
		if !token.WaitTimeout(timeout) {
			log.Printf("mqtt publish to %s timed out", topic)
			return
		}
		if err := token.Error(); err != nil {
			log.Printf("mqtt publish to %s error: %s", topic, err)
		}
	}()
}

// MQTTConfig is what's needed to make an MQTT client.
//
// The field names follow mosquitto_sub's command line arguments.
type MQTTConfig struct {
	Broker    string `yaml:"broker"`
	Port      int    `yaml:"port"`
	ClientId  string `yaml:"clientId"`
	KeepAlive int    `yaml:"keepAlive"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Reconnect bool   `yaml:"reconnect"`
	Clean     bool   `yaml:"clean"`

	CertFile string `yaml:"cert"`
	KeyFile  string `yaml:"key"`
	CAFile   string `yaml:"cafile"`
	Insecure bool   `yaml:"insecure"`

	// Topic can have a ":QOS" suffix (see ParseTopic).
	Topic string `yaml:"topic"`
	Split bool   `yaml:"split"`

	// Quiesce is the disconnection quiescence in milliseconds.
	Quiesce uint `yaml:"quiesce"`
}

// DefaultMQTTConfig has the usual local broker settings.
var DefaultMQTTConfig = MQTTConfig{
	Broker:    "tcp://localhost",
	Port:      1883,
	KeepAlive: 10,
	Clean:     true,
	Topic:     "voodoo/events",
	Quiesce:   100,
}

// ClientOptions makes the Paho options for the configuration.
func (c *MQTTConfig) ClientOptions() (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions()

	broker := c.Broker
	if c.Port != 0 {
		broker = fmt.Sprintf("%s:%d", broker, c.Port)
	}
	opts.AddBroker(broker)
	opts.SetClientID(c.ClientId)
	opts.SetKeepAlive(time.Second * time.Duration(c.KeepAlive))

	opts.Username = c.Username
	opts.Password = c.Password
	opts.AutoReconnect = c.Reconnect
	opts.CleanSession = c.Clean

	tlsConf := &tls.Config{
		InsecureSkipVerify: c.Insecure,
	}

	if c.CAFile != "" {
		rootCAs, _ := x509.SystemCertPool()
		if rootCAs == nil {
			rootCAs = x509.NewCertPool()
		}
		certs, err := ioutil.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("couldn't read %s: %w", c.CAFile, err)
		}
		if !rootCAs.AppendCertsFromPEM(certs) {
			log.Printf("no certs appended from %s", c.CAFile)
		}
		tlsConf.RootCAs = rootCAs
	}

	if c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, err
		}
		tlsConf.Certificates = []tls.Certificate{cert}
	}

	opts.SetTLSConfig(tlsConf)

	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Printf("mqtt connection lost: %s", err)
	}

	return opts, nil
}

// NewMQTTSink connects to a broker and returns a sink that publishes
// to it along with a function that disconnects.
func NewMQTTSink(c *MQTTConfig) (*MQTTSink, func(), error) {
	mqtt.ERROR = log.New(os.Stderr, "mqtt.error ", 0)

	opts, err := c.ClientOptions()
	if err != nil {
		return nil, nil, err
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, nil, token.Error()
	}
	log.Printf("connected to mqtt broker %s", opts.Servers[0])

	topic, qos := ParseTopic(c.Topic)
	s := &MQTTSink{
		Client: client,
		Topic:  topic,
		Split:  c.Split,
		QoS:    qos,
	}

	disconnect := func() {
		client.Disconnect(c.Quiesce)
	}

	return s, disconnect, nil
}

// ParseTopic can extract QoS from a topic name of the form TOPIC:QOS.
func ParseTopic(s string) (string, byte) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return s, 0
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil || n < 0 || 2 < n {
		return s, 0
	}
	return s[:i], byte(n)
}
