package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/driftlock/symbiont/internal/llm"
	"github.com/driftlock/symbiont/internal/store"
)

// Dedup checks are skipped when the retrieved context is shorter than this;
// a near-empty context has nothing worth comparing against.
const dedupContextMin = 50

const dedupPromptTmpl = `EXISTING MEMORIES:
%s

NEW CANDIDATE FACT: "%s"

TASK: Determine if the CANDIDATE FACT is already present in EXISTING MEMORIES.
- If it is already stated (even if worded differently), return "DUPLICATE".
- If it is new information or updates a specific detail, return "NEW".

Return JSON: { "status": "DUPLICATE" } or { "status": "NEW" }`

type dedupPayload struct {
	Status string `json:"status"`
}

type persistTask struct {
	id    string
	facts []CandidateFact
}

// Persister stores accepted facts off the turn's critical path. Tasks are
// enqueued FIFO and drained by a single worker, so storage order within and
// across turns is sequential while never blocking the user-visible reply.
//
// The dedup check reads the coordinator's current last-retrieved context
// through contextFn; a new turn may have overwritten it by the time an
// in-flight task runs, so the comparison can see a stale or newer snapshot.
// That race is accepted, not guarded.
type Persister struct {
	backend   llm.Backend
	store     store.FactStore
	contextFn func() string

	mu     sync.Mutex
	closed bool
	tasks  chan persistTask
	wg     sync.WaitGroup
}

func NewPersister(backend llm.Backend, st store.FactStore, contextFn func() string) *Persister {
	p := &Persister{
		backend:   backend,
		store:     st,
		contextFn: contextFn,
		tasks:     make(chan persistTask, 64),
	}
	p.wg.Add(1)
	go p.worker()
	return p
}

// Enqueue submits one turn's accepted facts for background persistence.
// With memory disabled, nothing to store, or after Close, it is a no-op.
// A turn finishing during shutdown must never panic the process.
func (p *Persister) Enqueue(facts []CandidateFact) {
	if p.store == nil || len(facts) == 0 {
		return
	}

	task := persistTask{id: uuid.NewString()[:8], facts: facts}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		log.Printf("[persist] %s: persister closed, dropping %d facts", task.id, len(facts))
		return
	}
	select {
	case p.tasks <- task:
	default:
		log.Printf("[persist] %s: queue full, dropping %d facts", task.id, len(facts))
	}
}

// Close stops accepting tasks and drains what is already queued.
func (p *Persister) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Persister) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.process(task)
	}
}

func (p *Persister) process(task persistTask) {
	ctx := context.Background()
	retrieved := p.contextFn()

	for _, fact := range task.facts {
		if strings.TrimSpace(fact.Fact) == "" || fact.Fact == "null" {
			continue
		}

		if len(retrieved) > dedupContextMin {
			dup, err := p.checkDuplicate(ctx, fact.Fact, retrieved)
			if err != nil {
				// Fail open: an occasional duplicate row beats a lost fact.
				log.Printf("[persist] %s: dedup check failed, saving anyway: %v", task.id, err)
			} else if dup {
				log.Printf("[persist] %s: skipped duplicate: %q", task.id, fact.Fact)
				continue
			}
		}

		log.Printf("[persist] %s: saving fact: %q", task.id, fact.Fact)
		if err := p.store.StoreAtomic(ctx, store.Fact{
			Fact:       fact.Fact,
			Entities:   fact.Entities,
			Topics:     fact.Topics,
			Importance: fact.Importance,
		}); err != nil {
			log.Printf("[persist] %s: store failed: %v", task.id, err)
		}
	}
}

func (p *Persister) checkDuplicate(ctx context.Context, fact, retrieved string) (bool, error) {
	prompt := fmt.Sprintf(dedupPromptTmpl, retrieved, fact)
	payload, err := llm.Complete(ctx, p.backend,
		[]llm.Message{{Role: RoleSystem, Content: prompt}},
		func(p dedupPayload) bool { return p.Status != "" },
		"deduplication")
	if err != nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(payload.Status), "DUPLICATE"), nil
}
