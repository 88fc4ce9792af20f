// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
	"github.com/AyushRauniyar/RFP-Management-System/internal/store"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store *store.Memory
	acme  models.Vendor
	other models.Vendor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemory()
	acme := &models.Vendor{Name: "Acme", Email: "sales@acme.com"}
	other := &models.Vendor{Name: "Other", Email: "bids@other.com"}
	require.NoError(t, s.CreateVendor(ctx, acme))
	require.NoError(t, s.CreateVendor(ctx, other))
	return &fixture{store: s, acme: *acme, other: *other}
}

func (f *fixture) rfp(t *testing.T, id, title string, status models.RFPStatus, age time.Duration, to ...models.Vendor) {
	t.Helper()
	require.NoError(t, f.store.CreateRFP(context.Background(), &models.RFP{
		ID:         id,
		Title:      title,
		Status:     status,
		Recipients: to,
		CreatedAt:  base.Add(-age),
	}))
}

func TestMatchRFP_IDTagBeatsSubjectSimilarity(t *testing.T) {
	f := newFixture(t)
	f.rfp(t, "rfp-a", "Office Furniture Bulk Order", models.RFPSent, time.Hour, f.acme)
	f.rfp(t, "rfp-b", "IT Equipment", models.RFPSent, 2*time.Hour, f.acme)

	m := New(f.store)
	r, tier, err := m.MatchRFP(context.Background(),
		"Re: RFP: IT Equipment Quote, also office furniture bulk order pricing [ID: rfp-b]",
		"Sales@Acme.com")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "rfp-b", r.ID)
	assert.Equal(t, TierIDTag, tier)
}

func TestMatchRFP_SubjectWords(t *testing.T) {
	f := newFixture(t)
	f.rfp(t, "furniture", "Office Furniture Bulk Order", models.RFPSent, time.Hour, f.acme)
	f.rfp(t, "laptops", "Laptop Equipment Purchase", models.RFPResponsesReceived, 3*time.Hour, f.acme)

	m := New(f.store)
	r, tier, err := m.MatchRFP(context.Background(), "Re: Quote for Laptop Equipment", "sales@acme.com")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "laptops", r.ID)
	assert.Equal(t, TierSubject, tier)
}

func TestMatchRFP_SubjectHighestRatioWins(t *testing.T) {
	f := newFixture(t)
	// 2 of 4 significant words.
	f.rfp(t, "broad", "Office Chairs Desks Cabinets", models.RFPSent, 2*time.Hour, f.acme)
	// 2 of 2 significant words.
	f.rfp(t, "narrow", "Office Chairs", models.RFPSent, time.Hour, f.acme)

	r, tier, err := New(f.store).MatchRFP(context.Background(), "Re: RFP office chairs", "sales@acme.com")
	require.NoError(t, err)
	assert.Equal(t, "narrow", r.ID)
	assert.Equal(t, TierSubject, tier)
}

func TestMatchRFP_SubjectTieGoesToOldest(t *testing.T) {
	f := newFixture(t)
	f.rfp(t, "newer", "Printer Paper Supply", models.RFPSent, time.Hour, f.acme)
	f.rfp(t, "older", "Paper Printer Toner", models.RFPSent, 5*time.Hour, f.acme)

	for range 5 {
		r, tier, err := New(f.store).MatchRFP(context.Background(), "Re: RFP printer paper", "sales@acme.com")
		require.NoError(t, err)
		assert.Equal(t, "older", r.ID)
		assert.Equal(t, TierSubject, tier)
	}
}

func TestMatchRFP_SingleWordOverlapFallsBackToMostRecent(t *testing.T) {
	f := newFixture(t)
	f.rfp(t, "old", "Office Furniture Bulk Order", models.RFPSent, 48*time.Hour, f.acme)
	f.rfp(t, "new", "Network Switches", models.RFPEvaluated, time.Hour, f.acme)
	f.rfp(t, "draft", "Furniture Draft", models.RFPDraft, 0, f.acme)

	r, tier, err := New(f.store).MatchRFP(context.Background(), "Re: RFP furniture", "sales@acme.com")
	require.NoError(t, err)
	assert.Equal(t, "new", r.ID)
	assert.Equal(t, TierRecent, tier)
}

func TestMatchRFP_SpoofedTagFallsThrough(t *testing.T) {
	f := newFixture(t)
	f.rfp(t, "theirs", "Secret Contract Work", models.RFPSent, time.Hour, f.other)
	f.rfp(t, "mine", "Cleaning Services", models.RFPSent, 2*time.Hour, f.acme)

	r, tier, err := New(f.store).MatchRFP(context.Background(), "Re: RFP [ID: theirs]", "sales@acme.com")
	require.NoError(t, err)
	assert.Equal(t, "mine", r.ID)
	assert.Equal(t, TierRecent, tier)
}

func TestMatchRFP_UnknownTagFallsThrough(t *testing.T) {
	f := newFixture(t)
	f.rfp(t, "mine", "Cleaning Services Contract", models.RFPSent, time.Hour, f.acme)

	r, tier, err := New(f.store).MatchRFP(context.Background(), "Re: RFP cleaning services [ID: missing]", "sales@acme.com")
	require.NoError(t, err)
	assert.Equal(t, "mine", r.ID)
	assert.Equal(t, TierSubject, tier)
}

func TestMatchRFP_NothingEligible(t *testing.T) {
	f := newFixture(t)
	f.rfp(t, "draft", "Cleaning Services", models.RFPDraft, time.Hour, f.acme)
	f.rfp(t, "theirs", "Cleaning Services", models.RFPSent, time.Hour, f.other)

	r, tier, err := New(f.store).MatchRFP(context.Background(), "Re: RFP cleaning services", "sales@acme.com")
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.Equal(t, TierNone, tier)
}

type failingSource struct{ err error }

func (f failingSource) GetRFP(context.Context, string) (*models.RFP, error) { return nil, f.err }
func (f failingSource) RFPsForVendor(context.Context, string, []models.RFPStatus) ([]models.RFP, error) {
	return nil, f.err
}

func TestMatchRFP_StoreErrorsPropagate(t *testing.T) {
	boom := errors.New("connection reset")
	m := New(failingSource{err: boom})

	_, _, err := m.MatchRFP(context.Background(), "Re: RFP [ID: x]", "a@b.com")
	assert.ErrorIs(t, err, boom)

	_, _, err = m.MatchRFP(context.Background(), "Re: RFP", "a@b.com")
	assert.ErrorIs(t, err, boom)
}

func TestIDTag(t *testing.T) {
	tests := []struct {
		subject string
		want    string
	}{
		{"Re: RFP: Laptops [ID: 6650a1b2c3d4e5f601234567]", "6650a1b2c3d4e5f601234567"},
		{"re: rfp [id:abc-123]", "abc-123"},
		{"Re: RFP [ID:   spaced ]", "spaced"},
		{"Re: RFP [ID: ]", ""},
		{"Re: RFP no tag", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IDTag(tt.subject), tt.subject)
	}
}

func TestTitleWords(t *testing.T) {
	assert.Equal(t, []string{"office", "furniture", "bulk", "order"}, TitleWords("Office Furniture Bulk Order"))
	assert.Equal(t, []string{"equipment"}, TitleWords("IT Equipment for HQ"))
	assert.Empty(t, TitleWords("IT for HQ"))
	assert.Equal(t, []string{"équipe", "bürö"}, TitleWords("Équipe Été Bürö"))
	assert.Empty(t, TitleWords("été ça çà"))
}
