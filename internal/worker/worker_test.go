package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/movieclub/backend/pkg/queue"
)

type fakeObjects struct {
	mu      sync.Mutex
	deleted []string
	failFor int
}

func (f *fakeObjects) DeleteObject(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor > 0 {
		f.failFor--
		return errors.New("s3 unavailable")
	}
	f.deleted = append(f.deleted, bucket+"/"+key)
	return nil
}

// fakeQueue mirrors the Redis queue: retries go back on the list until MaxRetries.
type fakeQueue struct {
	mu   sync.Mutex
	jobs []*queue.Job
	dlq  []*queue.Job
}

func (q *fakeQueue) Dequeue(ctx context.Context, _ time.Duration) (*queue.Job, error) {
	q.mu.Lock()
	if len(q.jobs) == 0 {
		q.mu.Unlock()
		time.Sleep(time.Millisecond)
		return nil, nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.mu.Unlock()
	return job, nil
}

func (q *fakeQueue) Retry(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempt++
	if job.Attempt >= queue.MaxRetries {
		q.dlq = append(q.dlq, job)
		return nil
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) dead() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.dlq)
}

func (f *fakeObjects) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted)
}

func cleanupJob(t *testing.T) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(queue.JobTypeAvatarCleanup, queue.AvatarCleanupPayload{GroupID: 3, Bucket: "avatars-bucket", Key: "avatars/3/a.png"})
	if err != nil {
		t.Fatal(err)
	}
	return job
}

func TestProcessDeletesAvatar(t *testing.T) {
	objects := &fakeObjects{}
	p := NewAvatarCleanupProcessor(objects, &fakeQueue{}, zap.NewNop())
	if err := p.Process(context.Background(), cleanupJob(t)); err != nil {
		t.Fatal(err)
	}
	if len(objects.deleted) != 1 || objects.deleted[0] != "avatars-bucket/avatars/3/a.png" {
		t.Fatalf("deleted = %v", objects.deleted)
	}
}

func TestProcessRejectsBadJobs(t *testing.T) {
	p := NewAvatarCleanupProcessor(&fakeObjects{}, &fakeQueue{}, nil)
	if err := p.Process(context.Background(), &queue.Job{Type: "bogus"}); err == nil {
		t.Fatal("expected unknown type error")
	}
	empty, _ := queue.NewJob(queue.JobTypeAvatarCleanup, queue.AvatarCleanupPayload{GroupID: 1})
	if err := p.Process(context.Background(), empty); err == nil {
		t.Fatal("expected missing key error")
	}
}

func runUntil(t *testing.T, p *AvatarCleanupProcessor, done func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(stopped)
	}()
	deadline := time.After(2 * time.Second)
	for !done() {
		select {
		case <-deadline:
			cancel()
			t.Fatal("worker did not finish the job")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-stopped
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	objects := &fakeObjects{failFor: 1}
	q := &fakeQueue{jobs: []*queue.Job{cleanupJob(t)}}
	p := NewAvatarCleanupProcessor(objects, q, zap.NewNop())
	p.backoff = time.Millisecond

	runUntil(t, p, func() bool { return objects.count() == 1 })
	if len(objects.deleted) != 1 || len(q.dlq) != 0 {
		t.Fatalf("deleted=%v dlq=%d", objects.deleted, len(q.dlq))
	}
}

func TestRunMovesToDLQAfterMaxRetries(t *testing.T) {
	objects := &fakeObjects{failFor: queue.MaxRetries}
	q := &fakeQueue{jobs: []*queue.Job{cleanupJob(t)}}
	p := NewAvatarCleanupProcessor(objects, q, zap.NewNop())
	p.backoff = time.Millisecond

	runUntil(t, p, func() bool { return q.dead() == 1 })
	if len(objects.deleted) != 0 || len(q.dlq) != 1 || q.dlq[0].Attempt != queue.MaxRetries {
		t.Fatalf("deleted=%v dlq=%+v", objects.deleted, q.dlq)
	}
}
