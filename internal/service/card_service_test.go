package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewise/vms-api/internal/models"
	appErrors "github.com/gatewise/vms-api/pkg/errors"
)

// fakeCardRepo mirrors the repository's transactional semantics with a
// mutex so concurrent Assign calls contend the same way they would on
// the row lock.
type fakeCardRepo struct {
	mu    sync.Mutex
	cards map[int]*models.Card
}

func newFakeCardRepo(cards ...*models.Card) *fakeCardRepo {
	f := &fakeCardRepo{cards: make(map[int]*models.Card)}
	for _, c := range cards {
		clone := *c
		f.cards[c.ID] = &clone
	}
	return f
}

func (f *fakeCardRepo) GetByID(ctx context.Context, id int) (*models.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *c
	return &clone, nil
}

func (f *fakeCardRepo) List(ctx context.Context) ([]models.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Card, 0, len(f.cards))
	for _, c := range f.cards {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeCardRepo) ListAvailable(ctx context.Context) ([]models.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Card
	for _, c := range f.cards {
		if !c.Occupied {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCardRepo) Create(ctx context.Context, c *models.Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = len(f.cards) + 1
	clone := *c
	f.cards[c.ID] = &clone
	return nil
}

func (f *fakeCardRepo) Update(ctx context.Context, id int, cardName string) (*models.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	for _, other := range f.cards {
		if other.ID != id && other.CardName == cardName {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("card name %q is already in use", cardName))
		}
	}
	c.CardName = cardName
	clone := *c
	return &clone, nil
}

func (f *fakeCardRepo) Delete(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cards[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.cards, id)
	return nil
}

func (f *fakeCardRepo) ForVisitor(ctx context.Context, visitorID int64) (*models.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.cards {
		if c.OccupiedBy != nil && *c.OccupiedBy == visitorID {
			clone := *c
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCardRepo) Stats(ctx context.Context) (*models.CardStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &models.CardStats{Total: len(f.cards)}
	for _, c := range f.cards {
		if c.Occupied {
			stats.Occupied++
		} else {
			stats.Available++
		}
	}
	return stats, nil
}

func (f *fakeCardRepo) Assign(ctx context.Context, cardID int, visitorID int64) (*models.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[cardID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("card %d not found", cardID))
	}
	if c.Occupied {
		return nil, appErrors.Clone(appErrors.ErrCardOccupied, fmt.Sprintf("card %s is already assigned", c.CardName))
	}
	for _, other := range f.cards {
		if other.OccupiedBy != nil && *other.OccupiedBy == visitorID {
			return nil, appErrors.Clone(appErrors.ErrVisitorHasCard, fmt.Sprintf("visitor %d already has a card assigned", visitorID))
		}
	}
	c.Occupied = true
	c.OccupiedBy = &visitorID
	clone := *c
	return &clone, nil
}

func (f *fakeCardRepo) Release(ctx context.Context, cardID int) (*models.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[cardID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("card %d not found", cardID))
	}
	if !c.Occupied || c.OccupiedBy == nil {
		return nil, appErrors.Clone(appErrors.ErrCardNotOccupied, fmt.Sprintf("card %s is not currently assigned", c.CardName))
	}
	c.Occupied = false
	c.OccupiedBy = nil
	clone := *c
	return &clone, nil
}

type fakeCardVisitorRepo struct {
	visitors map[int64]*models.Visitor
}

func (f *fakeCardVisitorRepo) GetByID(ctx context.Context, id int64) (*models.Visitor, error) {
	v, ok := f.visitors[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *v
	return &clone, nil
}

func approvedVisitor(id int64) *models.Visitor {
	return &models.Visitor{ID: id, VisitorName: "Ravi Kumar", Status: models.StatusApproved}
}

func cardFixture(cards []*models.Card, visitors ...*models.Visitor) (*CardService, *fakeCardRepo) {
	repo := newFakeCardRepo(cards...)
	vr := &fakeCardVisitorRepo{visitors: make(map[int64]*models.Visitor)}
	for _, v := range visitors {
		vr.visitors[v.ID] = v
	}
	return NewCardService(repo, vr, nil, nil), repo
}

func TestCardAssign(t *testing.T) {
	svc, _ := cardFixture(
		[]*models.Card{{ID: 1, CardName: "CARD-01"}},
		approvedVisitor(20250826101500),
	)

	card, err := svc.Assign(context.Background(), 1, models.AssignCardRequest{VisitorID: "20250826101500"})
	require.NoError(t, err)
	assert.True(t, card.Occupied)
	require.NotNil(t, card.OccupiedBy)
	assert.Equal(t, int64(20250826101500), *card.OccupiedBy)
}

func TestCardAssignRejectsUnapprovedVisitor(t *testing.T) {
	waiting := &models.Visitor{ID: 20250826101500, Status: models.StatusWaiting}
	svc, repo := cardFixture([]*models.Card{{ID: 1, CardName: "CARD-01"}}, waiting)

	_, err := svc.Assign(context.Background(), 1, models.AssignCardRequest{VisitorID: "20250826101500"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	card, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, card.Occupied)
}

func TestCardAssignRejectsCheckedOutVisitor(t *testing.T) {
	out := time.Now().UTC()
	gone := &models.Visitor{ID: 20250826101500, Status: models.StatusApproved, CheckOutTime: &out}
	svc, _ := cardFixture([]*models.Card{{ID: 1, CardName: "CARD-01"}}, gone)

	_, err := svc.Assign(context.Background(), 1, models.AssignCardRequest{VisitorID: "20250826101500"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCardAssignUnknownVisitor(t *testing.T) {
	svc, _ := cardFixture([]*models.Card{{ID: 1, CardName: "CARD-01"}})

	_, err := svc.Assign(context.Background(), 1, models.AssignCardRequest{VisitorID: "20250826101500"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCardAssignVisitorAlreadyHoldsCard(t *testing.T) {
	holder := int64(20250826101500)
	svc, _ := cardFixture(
		[]*models.Card{
			{ID: 1, CardName: "CARD-01", Occupied: true, OccupiedBy: &holder},
			{ID: 2, CardName: "CARD-02"},
		},
		approvedVisitor(holder),
	)

	_, err := svc.Assign(context.Background(), 2, models.AssignCardRequest{VisitorID: "20250826101500"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrVisitorHasCard.Code, appErrors.FromError(err).Code)
}

func TestCardAssignConcurrentSingleWinner(t *testing.T) {
	const contenders = 16

	visitors := make([]*models.Visitor, 0, contenders)
	for i := 0; i < contenders; i++ {
		visitors = append(visitors, approvedVisitor(int64(20250826101500+i)))
	}
	svc, repo := cardFixture([]*models.Card{{ID: 1, CardName: "CARD-01"}}, visitors...)

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := models.AssignCardRequest{VisitorID: fmt.Sprintf("%d", 20250826101500+i)}
			_, errs[i] = svc.Assign(context.Background(), 1, req)
		}(i)
	}
	wg.Wait()

	var won int
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.Equal(t, appErrors.ErrCardOccupied.Code, appErrors.FromError(err).Code)
		}
	}
	assert.Equal(t, 1, won)

	card, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, card.Occupied)
	require.NotNil(t, card.OccupiedBy)
}

func TestCardRelease(t *testing.T) {
	holder := int64(20250826101500)
	svc, _ := cardFixture(
		[]*models.Card{{ID: 1, CardName: "CARD-01", Occupied: true, OccupiedBy: &holder}},
		approvedVisitor(holder),
	)

	card, err := svc.Release(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, card.Occupied)
	assert.Nil(t, card.OccupiedBy)
}

func TestCardReleaseNotOccupied(t *testing.T) {
	svc, _ := cardFixture([]*models.Card{{ID: 1, CardName: "CARD-01"}})

	_, err := svc.Release(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCardNotOccupied.Code, appErrors.FromError(err).Code)
}

func TestCardUpdateRenames(t *testing.T) {
	svc, repo := cardFixture([]*models.Card{{ID: 1, CardName: "CARD-01"}})

	card, err := svc.Update(context.Background(), 1, models.UpdateCardRequest{CardName: "GATE-A-01"})
	require.NoError(t, err)
	assert.Equal(t, "GATE-A-01", card.CardName)

	stored, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "GATE-A-01", stored.CardName)
}

func TestCardUpdateNotFound(t *testing.T) {
	svc, _ := cardFixture(nil)

	_, err := svc.Update(context.Background(), 99, models.UpdateCardRequest{CardName: "GATE-A-01"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCardUpdateNameTaken(t *testing.T) {
	svc, _ := cardFixture([]*models.Card{
		{ID: 1, CardName: "CARD-01"},
		{ID: 2, CardName: "CARD-02"},
	})

	_, err := svc.Update(context.Background(), 2, models.UpdateCardRequest{CardName: "CARD-01"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCardUpdateValidatesPayload(t *testing.T) {
	svc, _ := cardFixture([]*models.Card{{ID: 1, CardName: "CARD-01"}})

	_, err := svc.Update(context.Background(), 1, models.UpdateCardRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCardCreateValidatesPayload(t *testing.T) {
	svc, _ := cardFixture(nil)

	_, err := svc.Create(context.Background(), models.CreateCardRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCardForVisitorNotFound(t *testing.T) {
	svc, _ := cardFixture([]*models.Card{{ID: 1, CardName: "CARD-01"}})

	_, err := svc.ForVisitor(context.Background(), 20250826101500)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
