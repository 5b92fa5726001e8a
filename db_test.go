package main

import (
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "seals.db"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testCategories() []SealCategory {
	at := categoryConfig["AT"]
	at.Seals = []Seal{
		{Name: "Agumon", ImageURL: "/images/seals/agu.png", Locations: []string{"Digital World"}, MaxSeals: 3000, Bonuses: at.Bonuses},
		{Name: "Greymon", Locations: []string{"Unknown"}, MaxSeals: 1000},
	}
	ct := categoryConfig["CT"]
	ct.Seals = []Seal{
		{Name: "Renamon", Locations: []string{"Shinjuku West Field", "Shinjuku East Field"}, MaxSeals: 3000, Bonuses: ct.Bonuses},
	}
	return []SealCategory{at, ct}
}

func TestReplaceAllAndReadBack(t *testing.T) {
	store := testStore(t)

	count, err := store.ReplaceAll(testCategories())
	if err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}
	if count != 3 {
		t.Errorf("ReplaceAll count = %d, want 3", count)
	}

	categories, err := store.AllSealData()
	if err != nil {
		t.Fatalf("AllSealData failed: %v", err)
	}
	if len(categories) != 2 {
		t.Fatalf("got %d categories, want 2", len(categories))
	}

	// Categories come back ordered by short name: AT before CT.
	at := categories[0]
	if at.ID != "at" || len(at.Seals) != 2 {
		t.Fatalf("unexpected first category: %+v", at)
	}
	agumon := at.Seals[0]
	if agumon.Name != "Agumon" || agumon.ImageURL != "/images/seals/agu.png" {
		t.Errorf("unexpected seal: %+v", agumon)
	}
	if len(agumon.Locations) != 1 || agumon.Locations[0] != "Digital World" {
		t.Errorf("locations = %v", agumon.Locations)
	}

	// A seal stored with an empty schedule inherits its category's.
	greymon := at.Seals[1]
	if greymon.Bonuses.Master != "+100" {
		t.Errorf("inherited master bonus = %q, want +100", greymon.Bonuses.Master)
	}

	renamon := categories[1].Seals[0]
	if len(renamon.Locations) != 2 {
		t.Errorf("renamon locations = %v", renamon.Locations)
	}
}

func TestReplaceAllIsAFullSwap(t *testing.T) {
	store := testStore(t)

	if _, err := store.ReplaceAll(testCategories()); err != nil {
		t.Fatalf("first ReplaceAll failed: %v", err)
	}

	small := categoryConfig["HP"]
	small.Seals = []Seal{{Name: "Gotsumon", Locations: []string{"Ruined Historic"}, MaxSeals: 700}}
	count, err := store.ReplaceAll([]SealCategory{small})
	if err != nil {
		t.Fatalf("second ReplaceAll failed: %v", err)
	}
	if count != 1 {
		t.Errorf("second ReplaceAll count = %d, want 1", count)
	}

	total, err := store.SealCount()
	if err != nil {
		t.Fatalf("SealCount failed: %v", err)
	}
	if total != 1 {
		t.Errorf("seal count after swap = %d, want 1", total)
	}

	version, err := store.LastUpdate()
	if err != nil {
		t.Fatalf("LastUpdate failed: %v", err)
	}
	if version == "" {
		t.Error("last update stamp not set by ReplaceAll")
	}
}

func TestLastUpdateEmptyBeforeFirstScrape(t *testing.T) {
	store := testStore(t)
	version, err := store.LastUpdate()
	if err != nil {
		t.Fatalf("LastUpdate failed: %v", err)
	}
	if version != "" {
		t.Errorf("expected empty stamp, got %q", version)
	}
}

func TestScrapeRunLifecycle(t *testing.T) {
	store := testStore(t)

	id, err := store.CreateScrapeRun()
	if err != nil {
		t.Fatalf("CreateScrapeRun failed: %v", err)
	}

	runs, err := store.ScrapeRuns(10)
	if err != nil {
		t.Fatalf("ScrapeRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != runStatusRunning {
		t.Fatalf("unexpected open run: %+v", runs)
	}

	if err := store.FinishScrapeRun(id, runStatusSuccess, 42, "wiki fetch failed: 503"); err != nil {
		t.Fatalf("FinishScrapeRun failed: %v", err)
	}

	runs, err = store.ScrapeRuns(10)
	if err != nil {
		t.Fatalf("ScrapeRuns failed: %v", err)
	}
	run := runs[0]
	if run.Status != runStatusSuccess || run.SealsCount != 42 {
		t.Errorf("unexpected finished run: %+v", run)
	}
	if run.ErrorMessage != "wiki fetch failed: 503" {
		t.Errorf("fallback reason not preserved: %q", run.ErrorMessage)
	}
	if run.FinishedAt == "" {
		t.Error("finished_at not set")
	}
}

func TestFindSealByName(t *testing.T) {
	store := testStore(t)
	if _, err := store.ReplaceAll(testCategories()); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	seal, categoryID, found := store.FindSealByName("agumon")
	if !found {
		t.Fatal("case-insensitive lookup failed")
	}
	if seal.Name != "Agumon" || categoryID != "at" {
		t.Errorf("lookup returned %q in %q", seal.Name, categoryID)
	}
	if len(seal.Locations) != 1 {
		t.Errorf("lookup locations = %v", seal.Locations)
	}

	if _, _, found := store.FindSealByName("Omegamon"); found {
		t.Error("lookup of missing seal reported found")
	}
}

func TestAdminLocationCRUD(t *testing.T) {
	store := testStore(t)
	if _, err := store.ReplaceAll(testCategories()); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	seals, err := store.AllSealsWithLocations()
	if err != nil {
		t.Fatalf("AllSealsWithLocations failed: %v", err)
	}
	if len(seals) != 3 {
		t.Fatalf("got %d admin seals, want 3", len(seals))
	}
	agumon := seals[0]
	if agumon.CategoryName != "AT" || agumon.CategoryColor == "" {
		t.Errorf("admin row missing category metadata: %+v", agumon)
	}

	if err := store.AddLocation(agumon.ID, "Infinite Mountain"); err != nil {
		t.Fatalf("AddLocation failed: %v", err)
	}
	// Exact duplicates are ignored.
	if err := store.AddLocation(agumon.ID, "Infinite Mountain"); err != nil {
		t.Fatalf("duplicate AddLocation failed: %v", err)
	}

	seals, _ = store.AllSealsWithLocations()
	if len(seals[0].Locations) != 2 {
		t.Fatalf("locations after add = %+v", seals[0].Locations)
	}

	locID := seals[0].Locations[0].ID
	if err := store.UpdateLocation(locID, "Western Village"); err != nil {
		t.Fatalf("UpdateLocation failed: %v", err)
	}
	if err := store.DeleteLocation(locID); err != nil {
		t.Fatalf("DeleteLocation failed: %v", err)
	}
	if err := store.DeleteLocation(locID); err == nil {
		t.Error("deleting a missing location should fail")
	}

	if err := store.UpdateSealMax(agumon.ID, 700); err != nil {
		t.Fatalf("UpdateSealMax failed: %v", err)
	}
	updated, _, _ := store.FindSealByName("Agumon")
	if updated.MaxSeals != 700 {
		t.Errorf("max seals after update = %d, want 700", updated.MaxSeals)
	}
	if err := store.UpdateSealMax(999999, 700); err == nil {
		t.Error("updating a missing seal should fail")
	}
}
