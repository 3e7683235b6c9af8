// Package metrics is the in-process counter/gauge/histogram registry of
// original_source/src/metrics.hpp's Metrics struct, reworked around
// label-keyed maps instead of a cpprom dependency (nothing in the
// retrieval pack carries a Prometheus client), with a JSON snapshot
// encoder via json-iterator so the registry can still be scraped by
// something that wants machine-readable output.
package metrics

import (
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// Registry holds every named metric family the server and client
// instrument, grounded one-to-one on metrics.hpp's field list.
type Registry struct {
	mu sync.Mutex

	connAccepted Counter
	connDropped  Counter
	connActive   Gauge

	reqsTotal     *LabeledCounter
	reqHeaderSize *LabeledHistogram
	reqBodySize   *LabeledHistogram
	reqDuration   *LabeledHistogram

	respTotal *LabeledCounter
	respSize  *LabeledHistogram

	acceptErrors *LabeledCounter
	recvErrors   *LabeledCounter
	sendErrors   *LabeledCounter
	reqErrors    *LabeledCounter

	ioQueueOpsQueued Gauge
}

// New builds an empty registry.
func New() *Registry {
	return &Registry{
		reqsTotal:     newLabeledCounter(),
		reqHeaderSize: newLabeledHistogram(defaultSizeBuckets),
		reqBodySize:   newLabeledHistogram(defaultSizeBuckets),
		reqDuration:   newLabeledHistogram(defaultDurationBuckets),
		respTotal:     newLabeledCounter(),
		respSize:      newLabeledHistogram(defaultSizeBuckets),
		acceptErrors:  newLabeledCounter(),
		recvErrors:    newLabeledCounter(),
		sendErrors:    newLabeledCounter(),
		reqErrors:     newLabeledCounter(),
	}
}

var defaultSizeBuckets = []float64{64, 256, 1024, 4096, 16384, 65536, 262144}
var defaultDurationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

func (r *Registry) ConnAccepted() { r.connAccepted.Inc() }
func (r *Registry) ConnDropped()  { r.connDropped.Inc() }

// TrackInProgress increments the active-connections gauge and returns a
// closer that decrements it, the Go analogue of cpprom's
// TrackInProgressHandle RAII guard in server.hpp's Session constructor.
func (r *Registry) TrackInProgress() func() {
	r.connActive.Inc()
	var once sync.Once
	return func() {
		once.Do(func() { r.connActive.Dec() })
	}
}

func (r *Registry) ConnActive() float64 { return r.connActive.Value() }

func (r *Registry) RequestReceived(method, path string, headerBytes, bodyBytes int) {
	r.reqsTotal.Inc(method, path)
	r.reqHeaderSize.Observe(float64(headerBytes), method, path)
	r.reqBodySize.Observe(float64(bodyBytes), method, path)
}

func (r *Registry) RequestDuration(method, path string, seconds float64) {
	r.reqDuration.Observe(seconds, method, path)
}

func (r *Registry) ResponseSent(method, path, status string, bytes int) {
	r.respTotal.Inc(method, path, status)
	r.respSize.Observe(float64(bytes), method, path, status)
}

func (r *Registry) AcceptError(reason string) { r.acceptErrors.Inc(reason) }
func (r *Registry) RecvError(reason string)   { r.recvErrors.Inc(reason) }
func (r *Registry) SendError(reason string)   { r.sendErrors.Inc(reason) }
func (r *Registry) RequestError(reason string) { r.reqErrors.Inc(reason) }

func (r *Registry) SetIoQueueOpsQueued(n float64) { r.ioQueueOpsQueued.Set(n) }

// Snapshot is the JSON-serializable view returned by MarshalJSON, used by
// an optional /metrics-style debug endpoint.
type Snapshot struct {
	ConnAccepted     float64                    `json:"connections_accepted"`
	ConnDropped      float64                    `json:"connections_dropped"`
	ConnActive       float64                    `json:"connections_active"`
	RequestsTotal    map[string]float64         `json:"requests_total"`
	ResponsesTotal   map[string]float64         `json:"responses_total"`
	AcceptErrors     map[string]float64         `json:"accept_errors"`
	RecvErrors       map[string]float64         `json:"recv_errors"`
	SendErrors       map[string]float64         `json:"send_errors"`
	RequestErrors    map[string]float64         `json:"request_errors"`
	IoQueueOpsQueued float64                    `json:"io_queue_ops_queued"`
}

func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		ConnAccepted:     r.connAccepted.Value(),
		ConnDropped:      r.connDropped.Value(),
		ConnActive:       r.connActive.Value(),
		RequestsTotal:    r.reqsTotal.Snapshot(),
		ResponsesTotal:   r.respTotal.Snapshot(),
		AcceptErrors:     r.acceptErrors.Snapshot(),
		RecvErrors:       r.recvErrors.Snapshot(),
		SendErrors:       r.sendErrors.Snapshot(),
		RequestErrors:    r.reqErrors.Snapshot(),
		IoQueueOpsQueued: r.ioQueueOpsQueued.Value(),
	}
}

// MarshalJSON lets a Registry snapshot be written directly with
// json-iterator wherever config/jsoniter already is, e.g. a debug
// endpoint handler.
func (r *Registry) MarshalJSON() ([]byte, error) {
	return jsoniter.Marshal(r.Snapshot())
}
