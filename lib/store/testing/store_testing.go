package testing

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/GOTO-OBS/gtecs-common/lib/store"
)

// StoreFactory is a function that creates a new instance of an IRecordStore
// implementation. Every store returned by the factory must already have the
// Collections below declared and ready for use.
type StoreFactory func() store.IRecordStore

// Collections that factories must provide. The names mirror the kind of
// shared records the control daemons keep: telescope pointing, dome state
// and site conditions.
var Collections = []string{"pointing", "dome_state", "conditions"}

// RunRecordStoreTests runs the conformance test suite for an IRecordStore
// implementation. Payload values are limited to shapes that survive a JSON
// round trip (strings, bools, float64, nested maps and arrays thereof), so
// the same structural-equality assertions hold for every backend.
func RunRecordStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("PutGet", func(t *testing.T) {
			testPutGet(t, factory())
		})

		t.Run("GetMissing", func(t *testing.T) {
			testGetMissing(t, factory())
		})

		t.Run("PayloadRoundTrip", func(t *testing.T) {
			testPayloadRoundTrip(t, factory())
		})

		t.Run("PayloadValidation", func(t *testing.T) {
			testPayloadValidation(t, factory())
		})

		t.Run("UpdateCreates", func(t *testing.T) {
			testUpdateCreates(t, factory())
		})

		t.Run("UpdateIncrementsVersion", func(t *testing.T) {
			testUpdateIncrementsVersion(t, factory())
		})

		t.Run("ConcurrentUpdates", func(t *testing.T) {
			testConcurrentUpdates(t, factory())
		})

		t.Run("RacingUpdatesFromSameVersion", func(t *testing.T) {
			testRacingUpdatesFromSameVersion(t, factory())
		})

		t.Run("ListOrdered", func(t *testing.T) {
			testListOrdered(t, factory())
		})

		t.Run("ListPaged", func(t *testing.T) {
			testListPaged(t, factory())
		})

		t.Run("ListPrefix", func(t *testing.T) {
			testListPrefix(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, s store.IRecordStore) {
	defer s.Close()
	ctx := context.Background()

	payload := store.Payload{"ra": 83.82, "dec": -5.39, "tracking": true}

	rec, err := s.Put(ctx, "pointing", "telescope_1", payload)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if rec.Version != 1 {
		t.Errorf("Expected version 1 on creation, got %d", rec.Version)
	}

	got, err := s.Get(ctx, "pointing", "telescope_1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(got.Payload, payload) {
		t.Errorf("Expected payload %v, got %v", payload, got.Payload)
	}
	if got.Version != 1 {
		t.Errorf("Expected version 1, got %d", got.Version)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("Expected UpdatedAt to be set")
	}

	// Overwrite increments the version by exactly one
	rec, err = s.Put(ctx, "pointing", "telescope_1", store.Payload{"ra": 101.29, "dec": -16.71, "tracking": false})
	if err != nil {
		t.Fatalf("Second Put failed: %v", err)
	}
	if rec.Version != 2 {
		t.Errorf("Expected version 2 after overwrite, got %d", rec.Version)
	}
}

func testGetMissing(t *testing.T, s store.IRecordStore) {
	defer s.Close()

	_, err := s.Get(context.Background(), "pointing", "no_such_telescope")
	if err == nil {
		t.Fatal("Expected an error for a missing record")
	}
	if !store.IsNotFound(err) {
		t.Errorf("Expected NotFound, got code %s", store.CodeOf(err))
	}
}

func testPayloadRoundTrip(t *testing.T, s store.IRecordStore) {
	defer s.Close()
	ctx := context.Background()

	payload := store.Payload{
		"azimuth":  182.4,
		"shutter":  "open",
		"moving":   false,
		"history":  []any{"closed", "opening", "open"},
		"hardware": store.Payload{"firmware": "2.11", "relays": []any{true, false}},
	}

	if _, err := s.Put(ctx, "dome_state", "dome", payload); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := s.Get(ctx, "dome_state", "dome")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(got.Payload, payload) {
		t.Errorf("Round trip changed the payload:\n  wrote %v\n  read  %v", payload, got.Payload)
	}
}

func testPayloadValidation(t *testing.T, s store.IRecordStore) {
	defer s.Close()
	ctx := context.Background()

	_, err := s.Put(ctx, "pointing", "bad", store.Payload{"callback": func() {}})
	if store.CodeOf(err) != store.RetCInvalidPayload {
		t.Errorf("Expected InvalidPayload for a function value, got %v", err)
	}

	_, err = s.Put(ctx, "pointing", "bad", nil)
	if store.CodeOf(err) != store.RetCInvalidPayload {
		t.Errorf("Expected InvalidPayload for a nil payload, got %v", err)
	}
}

func testUpdateCreates(t *testing.T, s store.IRecordStore) {
	defer s.Close()
	ctx := context.Background()

	var seenVersion int64 = -1
	rec, err := s.Update(ctx, "conditions", "rain_gauge", func(current store.Record) (store.Payload, error) {
		seenVersion = current.Version
		return store.Payload{"wet": false}, nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if seenVersion != 0 {
		t.Errorf("Expected the mutator to see a zero-value placeholder, got version %d", seenVersion)
	}
	if rec.Version != 1 {
		t.Errorf("Expected version 1 after creating update, got %d", rec.Version)
	}
}

func testUpdateIncrementsVersion(t *testing.T, s store.IRecordStore) {
	defer s.Close()
	ctx := context.Background()

	const rounds = 5
	for i := 1; i <= rounds; i++ {
		rec, err := s.Update(ctx, "conditions", "wind", func(current store.Record) (store.Payload, error) {
			count := float64(0)
			if current.Version > 0 {
				count = current.Payload["samples"].(float64)
			}
			return store.Payload{"samples": count + 1}, nil
		})
		if err != nil {
			t.Fatalf("Update %d failed: %v", i, err)
		}
		if rec.Version != int64(i) {
			t.Errorf("Expected version %d, got %d", i, rec.Version)
		}
	}

	got, err := s.Get(ctx, "conditions", "wind")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Payload["samples"] != float64(rounds) {
		t.Errorf("Expected %d samples, got %v", rounds, got.Payload["samples"])
	}
}

func testConcurrentUpdates(t *testing.T, s store.IRecordStore) {
	defer s.Close()
	ctx := context.Background()

	const (
		goroutines = 4
		perRoutine = 5
	)

	var (
		wg        sync.WaitGroup
		successMu sync.Mutex
		successes int64
	)

	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perRoutine; i++ {
				_, err := s.Update(ctx, "conditions", "counter", func(current store.Record) (store.Payload, error) {
					count := float64(0)
					if current.Version > 0 {
						count = current.Payload["count"].(float64)
					}
					return store.Payload{"count": count + 1}, nil
				})
				if err == nil {
					successMu.Lock()
					successes++
					successMu.Unlock()
				} else if !store.IsConflict(err) {
					t.Errorf("Unexpected update error: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if successes == 0 {
		t.Fatal("Expected at least one update to succeed")
	}

	// No lost updates: the final version equals the number of updates that
	// reported success, and so does the counter they incremented.
	got, err := s.Get(ctx, "conditions", "counter")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Version != successes {
		t.Errorf("Lost update: %d successful updates but final version %d", successes, got.Version)
	}
	if got.Payload["count"] != float64(successes) {
		t.Errorf("Lost update: %d successful updates but counter %v", successes, got.Payload["count"])
	}
}

func testRacingUpdatesFromSameVersion(t *testing.T, s store.IRecordStore) {
	defer s.Close()
	ctx := context.Background()

	// Bring the record to version 3
	for i := 0; i < 3; i++ {
		if _, err := s.Put(ctx, "pointing", "pointing_state", store.Payload{"step": float64(i)}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	var (
		wg        sync.WaitGroup
		successMu sync.Mutex
		successes int64
	)

	// Two updates racing from the same starting point: one must land
	// version 4, the other must either retry and land version 5 or report
	// a conflict. Never may both claim version 4.
	versions := make(map[int64]int)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(id int) {
			defer wg.Done()
			rec, err := s.Update(ctx, "pointing", "pointing_state", func(current store.Record) (store.Payload, error) {
				return store.Payload{"winner": fmt.Sprintf("daemon_%d", id)}, nil
			})
			if err != nil {
				if !store.IsConflict(err) {
					t.Errorf("Unexpected update error: %v", err)
				}
				return
			}
			successMu.Lock()
			successes++
			versions[rec.Version]++
			successMu.Unlock()
		}(i)
	}
	wg.Wait()

	if successes < 1 {
		t.Fatal("Expected at least one racing update to succeed")
	}
	for version, count := range versions {
		if count > 1 {
			t.Errorf("Both racing updates claimed version %d", version)
		}
	}

	got, err := s.Get(ctx, "pointing", "pointing_state")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Version != 3+successes {
		t.Errorf("Expected final version %d after %d successful updates, got %d", 3+successes, successes, got.Version)
	}
}

func testListOrdered(t *testing.T, s store.IRecordStore) {
	defer s.Close()
	ctx := context.Background()

	// Insert out of order
	for _, key := range []string{"ut3", "ut1", "ut4", "ut2"} {
		if _, err := s.Put(ctx, "pointing", key, store.Payload{"id": key}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	collect := func() []string {
		var keys []string
		if err := s.List(ctx, "pointing", store.Filter{}, func(rec store.Record) bool {
			keys = append(keys, rec.Key)
			return true
		}); err != nil {
			t.Fatalf("List failed: %v", err)
		}
		return keys
	}

	want := []string{"ut1", "ut2", "ut3", "ut4"}
	if got := collect(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected keys %v, got %v", want, got)
	}

	// Restartable: a second iteration starts over from the first record
	if got := collect(); !reflect.DeepEqual(got, want) {
		t.Errorf("Second iteration differs: expected %v, got %v", want, got)
	}

	// Early stop
	var first []string
	if err := s.List(ctx, "pointing", store.Filter{}, func(rec store.Record) bool {
		first = append(first, rec.Key)
		return len(first) < 2
	}); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !reflect.DeepEqual(first, []string{"ut1", "ut2"}) {
		t.Errorf("Expected early stop after [ut1 ut2], got %v", first)
	}
}

func testListPaged(t *testing.T, s store.IRecordStore) {
	defer s.Close()
	ctx := context.Background()

	const total = 10
	for i := 0; i < total; i++ {
		key := fmt.Sprintf("sensor_%02d", i)
		if _, err := s.Put(ctx, "conditions", key, store.Payload{"n": float64(i)}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	// A page size smaller than the result set must be invisible to the
	// caller: the iteration still covers every record, in order.
	var keys []string
	if err := s.List(ctx, "conditions", store.Filter{PageSize: 3}, func(rec store.Record) bool {
		keys = append(keys, rec.Key)
		return true
	}); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != total {
		t.Fatalf("Expected %d records, got %d (%v)", total, len(keys), keys)
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Errorf("Keys out of order: %s before %s", keys[i-1], keys[i])
		}
	}
}

func testListPrefix(t *testing.T, s store.IRecordStore) {
	defer s.Close()
	ctx := context.Background()

	for _, key := range []string{"dome_north", "dome_south", "mirror_cover", "dome_east"} {
		if _, err := s.Put(ctx, "dome_state", key, store.Payload{"id": key}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	var keys []string
	if err := s.List(ctx, "dome_state", store.Filter{KeyPrefix: "dome_"}, func(rec store.Record) bool {
		keys = append(keys, rec.Key)
		return true
	}); err != nil {
		t.Fatalf("List failed: %v", err)
	}

	want := []string{"dome_east", "dome_north", "dome_south"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("Expected keys %v, got %v", want, keys)
	}
}
