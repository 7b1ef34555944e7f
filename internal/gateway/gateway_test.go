package gateway_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"anoa.com/kudosfeed/internal/entity"
	"anoa.com/kudosfeed/internal/gateway"
	"anoa.com/kudosfeed/internal/gateway/gatewaytest"
	"anoa.com/kudosfeed/pkg/apperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedKudos(t *testing.T, gw gateway.Gateway, sender uuid.UUID, message string, at time.Time) entity.Kudos {
	t.Helper()
	k := entity.Kudos{SenderID: sender, Message: message, Tags: []string{"teamwork"}, CreatedAt: at}
	_, err := gw.Mutate(context.Background(), gateway.Mutation{Op: gateway.Insert, Collection: entity.TableKudos, Payload: &k})
	require.NoError(t, err)
	return k
}

func TestQueryFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	gw, _ := gatewaytest.New(t)
	alice, bob := uuid.New(), uuid.New()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	first := seedKudos(t, gw, alice, "Thanks for the Launch help", base)
	second := seedKudos(t, gw, bob, "Great demo", base.Add(time.Hour))
	third := seedKudos(t, gw, alice, "launch party was fun", base.Add(2*time.Hour))

	var rows []entity.Kudos
	err := gw.Query(ctx, gateway.Query{
		Collection: entity.TableKudos,
		Text:       &gateway.TextFilter{Columns: []string{"message"}, Term: "LAUNCH"},
		OrderBy:    []gateway.Order{{Column: "created_at", Desc: true}},
		RangeEnd:   -1,
	}, &rows)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, third.ID, rows[0].ID)
	assert.Equal(t, first.ID, rows[1].ID)
	assert.Equal(t, []string{"teamwork"}, rows[0].Tags)

	rows = nil
	err = gw.Query(ctx, gateway.Query{
		Collection: entity.TableKudos,
		Equals:     map[string]any{"id": []uuid.UUID{first.ID, second.ID}},
		OrderBy:    []gateway.Order{{Column: "created_at"}},
		RangeEnd:   -1,
	}, &rows)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, first.ID, rows[0].ID)

	rows = nil
	err = gw.Query(ctx, gateway.Query{
		Collection: entity.TableKudos,
		Ranges:     []gateway.Range{{Column: "created_at", Op: gateway.OpGte, Value: base.Add(time.Hour)}},
		OrderBy:    []gateway.Order{{Column: "created_at", Desc: true}},
		RangeStart: 1,
		RangeEnd:   1,
	}, &rows)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, second.ID, rows[0].ID)
}

func TestQuerySingleNotFound(t *testing.T) {
	gw, _ := gatewaytest.New(t)

	var row entity.Kudos
	err := gw.Query(context.Background(), gateway.Query{
		Collection: entity.TableKudos,
		Equals:     map[string]any{"id": uuid.New()},
		Single:     true,
	}, &row)

	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestCount(t *testing.T) {
	gw, _ := gatewaytest.New(t)
	alice := uuid.New()
	now := time.Now().UTC()
	seedKudos(t, gw, alice, "one", now)
	seedKudos(t, gw, alice, "two", now)
	seedKudos(t, gw, uuid.New(), "three", now)

	n, err := gw.Count(context.Background(), gateway.Query{
		Collection: entity.TableKudos,
		Equals:     map[string]any{"sender_id": alice},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMutateUpdateRequireMatch(t *testing.T) {
	ctx := context.Background()
	gw, _ := gatewaytest.New(t)
	k := seedKudos(t, gw, uuid.New(), "draft", time.Now().UTC())

	res, err := gw.Mutate(ctx, gateway.Mutation{
		Op:           gateway.Update,
		Collection:   entity.TableKudos,
		Where:        map[string]any{"id": k.ID},
		Values:       map[string]any{"message": "final"},
		RequireMatch: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)

	_, err = gw.Mutate(ctx, gateway.Mutation{
		Op:           gateway.Update,
		Collection:   entity.TableKudos,
		Where:        map[string]any{"id": uuid.New()},
		Values:       map[string]any{"message": "final"},
		RequireMatch: true,
	})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestMutateUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	gw, _ := gatewaytest.New(t)
	kudosID, userID := uuid.New(), uuid.New()

	for _, typ := range []string{"clap", "heart"} {
		_, err := gw.Mutate(ctx, gateway.Mutation{
			Op:              gateway.Upsert,
			Collection:      entity.TableReactions,
			Payload:         &entity.Reaction{KudosID: kudosID, UserID: userID, Type: typ},
			ConflictColumns: []string{"kudos_id", "user_id"},
			Values:          map[string]any{"type": typ},
		})
		require.NoError(t, err)
	}

	var reactions []entity.Reaction
	require.NoError(t, gw.Query(ctx, gateway.Query{
		Collection: entity.TableReactions,
		Equals:     map[string]any{"kudos_id": kudosID},
		RangeEnd:   -1,
	}, &reactions))
	require.Len(t, reactions, 1)
	assert.Equal(t, "heart", reactions[0].Type)

	res, err := gw.Mutate(ctx, gateway.Mutation{
		Op:         gateway.Delete,
		Collection: entity.TableReactions,
		Payload:    &entity.Reaction{},
		Where:      map[string]any{"kudos_id": kudosID, "user_id": userID},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)
}

func TestRejectsUnsafeIdentifiers(t *testing.T) {
	ctx := context.Background()
	gw, _ := gatewaytest.New(t)

	var rows []entity.Kudos
	err := gw.Query(ctx, gateway.Query{
		Collection: entity.TableKudos,
		Equals:     map[string]any{"id; DROP TABLE kudos": 1},
		RangeEnd:   -1,
	}, &rows)
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = gw.Mutate(ctx, gateway.Mutation{
		Op:         gateway.Update,
		Collection: entity.TableKudos,
		Values:     map[string]any{"message": "x"},
	})
	assert.True(t, errors.Is(err, apperror.ErrValidation), "update without where must be rejected")
}
