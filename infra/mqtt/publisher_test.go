package mqtt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/pvbess/core/metrics"
	"github.com/kilianp07/pvbess/core/model"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	require.NoError(t, os.WriteFile(certFile, certPEM, 0644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0644))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0644))
	return
}

func useMock(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } })
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, tlsCfg.Certificates)
	assert.NotNil(t, tlsCfg.RootCAs)

	_, err = Config{UseTLS: true}.LoadTLSConfig()
	assert.Error(t, err)
}

func TestNewClientOptions(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p", TopicPrefix: "site"})
	require.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
	assert.True(t, opts.WillEnabled)
	assert.Equal(t, "site/status", opts.WillTopic)

	_, err = NewClientOptions(Config{})
	assert.Error(t, err)
}

func TestPublisherRecordStep(t *testing.T) {
	mc := &mockClient{}
	useMock(t, mc)
	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", ClientID: "id", QoS: 1})
	require.NoError(t, err)

	run := coremetrics.RunInfo{RunID: "r1", Scenario: model.ScenarioBattAware}
	rec := model.StepRecord{TimeIndex: 5, Solver: "lp", CostGBP: 0.1}
	require.NoError(t, pub.RecordStep(run, rec))

	// the first publish is the online status from OnConnect
	require.Len(t, mc.published, 2)
	assert.Equal(t, "pvbess/status", mc.published[0].topic)
	got := mc.published[1]
	assert.Equal(t, "pvbess/batt_aware/step", got.topic)
	assert.Equal(t, byte(1), got.qos)

	var msg StepMessage
	require.NoError(t, json.Unmarshal(got.payload, &msg))
	assert.Equal(t, "r1", msg.RunID)
	assert.Equal(t, model.ScenarioBattAware, msg.Scenario)
	assert.Equal(t, 5, msg.Record.TimeIndex)
	assert.NotEmpty(t, msg.MessageID)
}

func TestPublisherRecordRunSummary(t *testing.T) {
	mc := &mockClient{}
	useMock(t, mc)
	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", TopicPrefix: "lab"})
	require.NoError(t, err)
	sum := coremetrics.RunSummary{Steps: 48, Fallbacks: 1, Duration: 1500 * time.Millisecond}
	require.NoError(t, pub.RecordRunSummary(coremetrics.RunInfo{RunID: "r", Scenario: model.ScenarioBaseline}, sum))

	got := mc.published[len(mc.published)-1]
	assert.Equal(t, "lab/baseline/summary", got.topic)
	var msg SummaryMessage
	require.NoError(t, json.Unmarshal(got.payload, &msg))
	assert.Equal(t, 48, msg.Steps)
	assert.Equal(t, int64(1500), msg.DurationMS)

	require.NoError(t, pub.Close())
	assert.Equal(t, "lab/status", mc.published[len(mc.published)-1].topic)
	assert.True(t, mc.disconnected)
}

func TestPublisherRetry(t *testing.T) {
	mc := &mockClient{}
	useMock(t, mc)
	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	require.NoError(t, err)
	mc.publishErrs = []error{fmt.Errorf("net fail"), nil}
	require.NoError(t, pub.RecordStep(coremetrics.RunInfo{}, model.StepRecord{}))
	assert.Len(t, mc.published, 3)

	mc.publishErrs = []error{fmt.Errorf("net fail"), fmt.Errorf("net fail")}
	assert.Error(t, pub.RecordStep(coremetrics.RunInfo{}, model.StepRecord{}))
}

func TestNewPublisherConnectError(t *testing.T) {
	mc := &mockClient{connectErr: fmt.Errorf("refused")}
	useMock(t, mc)
	_, err := NewPublisher(Config{Broker: "tcp://localhost:1883"})
	assert.EqualError(t, err, "refused")
}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// mockClient implements pahoClient for tests
type mockClient struct {
	opts         *paho.ClientOptions
	published    []published
	publishErrs  []error
	connectErr   error
	disconnected bool
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.connectErr != nil {
		return &dummyToken{err: m.connectErr}
	}
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) { m.disconnected = true }
func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	var b []byte
	switch v := payload.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	}
	m.published = append(m.published, published{topic: topic, qos: qos, payload: b})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(string, byte, paho.MessageHandler) paho.Token { return &dummyToken{} }
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }
