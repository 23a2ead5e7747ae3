package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"eventgate/internal/config"
	"eventgate/internal/logger"
	"eventgate/internal/routing"
	apperrors "eventgate/pkg/errors"
	"eventgate/pkg/models"
)

var testInfo = routing.EventInfo{
	ID:        "evt-1",
	EventType: "push",
	Source:    "github",
	RouteName: "audit",
	Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
}

func eventCtx() context.Context {
	return routing.ContextWithEventInfo(context.Background(), testInfo)
}

type capturingProducer struct {
	topic string
	env   models.EventEnvelope
	err   error
}

func (p *capturingProducer) Publish(_ context.Context, topic string, env models.EventEnvelope) error {
	p.topic = topic
	p.env = env
	return p.err
}

func (p *capturingProducer) Close() error { return nil }

func TestFactory_Build(t *testing.T) {
	f := NewFactory(Dependencies{Producer: &capturingProducer{}})

	tests := []struct {
		name    string
		def     models.HandlerDefinition
		want    interface{}
		wantErr bool
	}{
		{"log", models.HandlerDefinition{Type: "log"}, &LogHandler{}, false},
		{"kafka", models.HandlerDefinition{Type: "kafka", Topic: "out"}, &KafkaHandler{}, false},
		{"kafka without topic", models.HandlerDefinition{Type: "kafka"}, nil, true},
		{"http", models.HandlerDefinition{Type: "http", URL: "http://sink"}, &HTTPHandler{}, false},
		{"http without url", models.HandlerDefinition{Type: "http"}, nil, true},
		{"mongo without client", models.HandlerDefinition{Type: "mongo", Database: "d", Collection: "c"}, nil, true},
		{"mongo without collection", models.HandlerDefinition{Type: "mongo", Database: "d"}, nil, true},
		{"unknown", models.HandlerDefinition{Type: "smtp"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := f.Build(tt.def)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, h)
		})
	}
}

func TestFactory_UnknownTypeIsValidationError(t *testing.T) {
	_, err := NewFactory(Dependencies{}).Build(models.HandlerDefinition{Type: "smtp"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestFactory_KafkaWithoutProducer(t *testing.T) {
	_, err := NewFactory(Dependencies{}).Build(models.HandlerDefinition{Type: "kafka", Topic: "out"})
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavailable)
}

func TestLogHandler(t *testing.T) {
	res, err := NewLogHandler(logger.NopLogger()).Invoke(eventCtx(), map[string]interface{}{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"logged": true}, res)
}

func TestKafkaHandler_PublishesEnvelope(t *testing.T) {
	p := &capturingProducer{}
	payload := map[string]interface{}{"ref": "main"}

	res, err := NewKafkaHandler(p, "routed").Invoke(eventCtx(), payload)
	require.NoError(t, err)

	assert.Equal(t, "routed", p.topic)
	assert.Equal(t, "evt-1", p.env.ID)
	assert.Equal(t, "github", p.env.Source)
	assert.Equal(t, "push", p.env.EventType)
	assert.Equal(t, "audit", p.env.Metadata.RouteName)
	assert.Equal(t, testInfo.Timestamp, p.env.Timestamp)
	assert.Equal(t, payload, p.env.Payload)
	assert.Equal(t, map[string]interface{}{"topic": "routed", "id": "evt-1"}, res)
}

func TestKafkaHandler_PublishError(t *testing.T) {
	p := &capturingProducer{err: errors.New("broker down")}
	_, err := NewKafkaHandler(p, "routed").Invoke(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	assert.NotEmpty(t, p.env.ID, "generates an id without event info")
}

func TestHTTPHandler_Success(t *testing.T) {
	var got map[string]interface{}
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accepted":true}`))
	}))
	defer srv.Close()

	h := NewHTTPHandler(srv.Client(), models.HandlerDefinition{
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer token"},
	}, config.CircuitBreakerConfig{})

	res, err := h.Invoke(eventCtx(), map[string]interface{}{"action": "opened"})
	require.NoError(t, err)

	assert.Equal(t, "opened", got["action"])
	assert.Equal(t, "Bearer token", headers.Get("Authorization"))
	assert.Equal(t, "evt-1", headers.Get("X-Event-ID"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))

	result := res.(map[string]interface{})
	assert.Equal(t, http.StatusOK, result["status_code"])
	assert.Equal(t, map[string]interface{}{"accepted": true}, result["response"])
}

func TestHTTPHandler_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	h := NewHTTPHandler(srv.Client(), models.HandlerDefinition{URL: srv.URL}, config.CircuitBreakerConfig{})
	_, err := h.Invoke(eventCtx(), map[string]interface{}{})
	assert.ErrorContains(t, err, "502")
}

func TestHTTPHandler_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewHTTPHandler(srv.Client(), models.HandlerDefinition{URL: srv.URL}, config.CircuitBreakerConfig{
		Enabled:      true,
		MinRequests:  2,
		FailureRatio: 0.5,
		Timeout:      time.Hour,
	})

	for i := 0; i < 2; i++ {
		_, err := h.Invoke(eventCtx(), map[string]interface{}{})
		require.Error(t, err)
	}

	_, err := h.Invoke(eventCtx(), map[string]interface{}{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load())
}

type fakeInserter struct {
	docs []interface{}
	err  error
}

func (f *fakeInserter) InsertOne(_ context.Context, doc interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.docs = append(f.docs, doc)
	return &mongo.InsertOneResult{InsertedID: "oid-1"}, nil
}

func newTestMongoHandler(ins *fakeInserter, ensureErr error) (*MongoHandler, *int) {
	calls := 0
	return &MongoHandler{
		collection: "events",
		inserter:   ins,
		ensure: func(context.Context) error {
			calls++
			return ensureErr
		},
		logger: logger.NopLogger(),
	}, &calls
}

func TestMongoHandler_Inserts(t *testing.T) {
	ins := &fakeInserter{}
	h, ensureCalls := newTestMongoHandler(ins, nil)

	res, err := h.Invoke(eventCtx(), map[string]interface{}{"a": 1})
	require.NoError(t, err)
	_, err = h.Invoke(eventCtx(), map[string]interface{}{"a": 2})
	require.NoError(t, err)

	assert.Equal(t, 1, *ensureCalls)
	require.Len(t, ins.docs, 2)
	assert.Equal(t, map[string]interface{}{"collection": "events", "inserted_id": "oid-1"}, res)
}

func TestMongoHandler_DuplicateIsSuccess(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	h, _ := newTestMongoHandler(&fakeInserter{err: dup}, nil)

	res, err := h.Invoke(eventCtx(), map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, true, res.(map[string]interface{})["duplicate"])
}

func TestMongoHandler_Errors(t *testing.T) {
	h, _ := newTestMongoHandler(&fakeInserter{err: errors.New("no primary")}, nil)
	_, err := h.Invoke(eventCtx(), map[string]interface{}{})
	assert.ErrorContains(t, err, "no primary")

	h, calls := newTestMongoHandler(&fakeInserter{}, errors.New("index failed"))
	_, err = h.Invoke(eventCtx(), map[string]interface{}{})
	assert.ErrorContains(t, err, "index failed")
	_, _ = h.Invoke(eventCtx(), map[string]interface{}{})
	assert.Equal(t, 2, *calls, "index creation retried after failure")
}
