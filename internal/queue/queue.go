package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
)

// TopicAgentTasks carries model.TaskInvocation payloads.
const TopicAgentTasks = "agent_tasks"

// Handler processes one message body. A returned error asks for redelivery.
type Handler func(body []byte) error

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler Handler) error
}

// InMemoryQueue delivers to subscribers in-process, retrying failed jobs with
// a linear backoff. It is meant for single-process development.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]Handler
	wg         sync.WaitGroup
	MaxRetries int
	Backoff    time.Duration
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}
}

type job struct {
	topic      string
	body       []byte
	retryCount int
}

// Publish encodes payload as JSON and hands it to every subscriber of topic.
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	body, err := encode(payload)
	if err != nil {
		return err
	}

	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, h := range handlers {
		q.wg.Add(1)
		go q.processJob(h, job{topic: topic, body: body})
	}
	return nil
}

func (q *InMemoryQueue) processJob(h Handler, j job) {
	defer q.wg.Done()
	for {
		err := h(j.body)
		if err == nil {
			return
		}
		j.retryCount++
		if j.retryCount > q.MaxRetries {
			logger.Alert("job permanently failed", "topic", j.topic, "attempts", j.retryCount, "error", err)
			return
		}
		logger.Warn("job failed, retrying", "topic", j.topic, "attempt", j.retryCount, "error", err)
		time.Sleep(time.Duration(j.retryCount) * q.Backoff)
	}
}

func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has finished.
func (q *InMemoryQueue) Wait() { q.wg.Wait() }

func encode(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return body, nil
}
