package alias

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-gmao/backend/internal/storage/models"
)

type fakeStore struct {
	aliases []models.EquipmentAlias
	err     error
}

func (f *fakeStore) ListAliases(ctx context.Context) ([]models.EquipmentAlias, error) {
	return f.aliases, f.err
}

func TestResolveExactContainment(t *testing.T) {
	store := &fakeStore{aliases: []models.EquipmentAlias{
		{EquipmentID: "E1", CanonicalName: "Compresseur GA-75", AliasText: "grand compresseur"},
	}}
	r := NewResolver(store, 0)

	resolved := r.Resolve(context.Background(), "Le grand compresseur ne démarre pas")

	require.Len(t, resolved, 1)
	assert.Equal(t, "E1", resolved[0].EquipmentID)
	assert.Equal(t, "Compresseur GA-75", resolved[0].CanonicalName)
	assert.Equal(t, "grand compresseur", resolved[0].MatchedAlias)
	assert.Equal(t, 1.0, resolved[0].Confidence)
}

func TestResolveArabicAlias(t *testing.T) {
	store := &fakeStore{aliases: []models.EquipmentAlias{
		{EquipmentID: "E1", CanonicalName: "Compresseur GA-75", AliasText: "الكمبريصور الكبير"},
	}}
	r := NewResolver(store, 0)

	resolved := r.Resolve(context.Background(), "شنو صيانة ديال الكمبريصور الكبير؟")

	require.Len(t, resolved, 1)
	assert.Equal(t, "E1", resolved[0].EquipmentID)
	assert.Equal(t, 1.0, resolved[0].Confidence)
}

func TestResolveBelowThresholdExcluded(t *testing.T) {
	store := &fakeStore{aliases: []models.EquipmentAlias{
		{EquipmentID: "E1", CanonicalName: "Pompe P-200", AliasText: "pompe de relevage"},
	}}
	r := NewResolver(store, 0.6)

	// No containment, almost no bigram overlap.
	resolved := r.Resolve(context.Background(), "calendrier des interventions")

	assert.Empty(t, resolved)
}

func TestResolveDedupeByEquipment(t *testing.T) {
	store := &fakeStore{aliases: []models.EquipmentAlias{
		{EquipmentID: "E1", CanonicalName: "Compresseur GA-75", AliasText: "compresseur principal"},
		{EquipmentID: "E1", CanonicalName: "Compresseur GA-75", AliasText: "compresseur"},
		{EquipmentID: "E2", CanonicalName: "Pompe P-200", AliasText: "pompe"},
	}}
	r := NewResolver(store, 0.6)

	resolved := r.Resolve(context.Background(), "le compresseur principal et la pompe")

	require.Len(t, resolved, 2)
	byID := make(map[string]Resolved)
	for _, m := range resolved {
		byID[m.EquipmentID] = m
	}
	assert.Equal(t, 1.0, byID["E1"].Confidence)
	assert.Equal(t, 1.0, byID["E2"].Confidence)
}

func TestResolveSortedByConfidence(t *testing.T) {
	store := &fakeStore{aliases: []models.EquipmentAlias{
		{EquipmentID: "E1", CanonicalName: "Compresseur GA-75", AliasText: "compresor principale"},
		{EquipmentID: "E2", CanonicalName: "Pompe P-200", AliasText: "pompe"},
	}}
	r := NewResolver(store, 0.3)

	resolved := r.Resolve(context.Background(), "la pompe et le compresseur principal")

	require.Len(t, resolved, 2)
	for i := 1; i < len(resolved); i++ {
		assert.GreaterOrEqual(t, resolved[i-1].Confidence, resolved[i].Confidence)
	}
	assert.Equal(t, "E2", resolved[0].EquipmentID)
	assert.Less(t, resolved[1].Confidence, 1.0)
}

func TestResolveStoreFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("database locked")}
	r := NewResolver(store, 0)

	resolved := r.Resolve(context.Background(), "le compresseur")

	assert.Empty(t, resolved)
}

func TestResolveEmptyTable(t *testing.T) {
	r := NewResolver(&fakeStore{}, 0)
	assert.Empty(t, r.Resolve(context.Background(), "le compresseur"))
}

func TestRewriteQuery(t *testing.T) {
	store := &fakeStore{aliases: []models.EquipmentAlias{
		{EquipmentID: "E1", CanonicalName: "Compresseur GA-75", AliasText: "grand compresseur"},
	}}
	r := NewResolver(store, 0)

	rewritten, resolved := r.RewriteQuery(context.Background(), "Le Grand Compresseur fait du bruit")

	require.Len(t, resolved, 1)
	assert.Equal(t, "Le Compresseur GA-75 fait du bruit", rewritten)
}

func TestRewriteQuerySkipsFuzzyMatches(t *testing.T) {
	store := &fakeStore{aliases: []models.EquipmentAlias{
		{EquipmentID: "E1", CanonicalName: "Compresseur GA-75", AliasText: "compresseur principal"},
	}}
	r := NewResolver(store, 0.3)

	query := "le compressor principale est bruyant"
	rewritten, resolved := r.RewriteQuery(context.Background(), query)

	// Fuzzy match resolves but must not alter the query text.
	require.NotEmpty(t, resolved)
	assert.Less(t, resolved[0].Confidence, 1.0)
	assert.Equal(t, query, rewritten)
}
