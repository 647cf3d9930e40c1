package params

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedInstallsVersionOne(t *testing.T) {
	r := NewRegistry()
	ps := r.Seed("momentum", map[string]float64{"rsi_lower": 45})

	assert.Equal(t, 1, ps.Version)
	assert.Equal(t, "momentum", ps.Strategy)
	assert.Equal(t, 45.0, ps.Get("rsi_lower", 0))

	active := r.Active("momentum")
	require.NotNil(t, active)
	assert.Same(t, ps, active)
}

func TestActiveIsNilForUnknownStrategy(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Active("momentum"))
}

func TestActivateIncrementsVersion(t *testing.T) {
	r := NewRegistry()
	r.Seed("momentum", map[string]float64{"rsi_lower": 45})

	next := r.Activate("momentum", map[string]float64{"rsi_lower": 40})
	assert.Equal(t, 2, next.Version)
	assert.Equal(t, 40.0, next.Get("rsi_lower", 0))

	third := r.Activate("momentum", map[string]float64{"rsi_lower": 50})
	assert.Equal(t, 3, third.Version)
}

func TestActivateWithoutSeedStartsAtVersionOne(t *testing.T) {
	r := NewRegistry()
	ps := r.Activate("momentum", map[string]float64{"rsi_lower": 45})
	assert.Equal(t, 1, ps.Version)
}

func TestInFlightReaderKeepsItsSet(t *testing.T) {
	r := NewRegistry()
	r.Seed("momentum", map[string]float64{"rsi_lower": 45})

	// A cycle reads the active set once at its start
	inFlight := r.Active("momentum")
	r.Activate("momentum", map[string]float64{"rsi_lower": 40})

	assert.Equal(t, 1, inFlight.Version)
	assert.Equal(t, 45.0, inFlight.Get("rsi_lower", 0), "an activation mid-cycle must not mutate the set already read")
	assert.Equal(t, 2, r.Active("momentum").Version)
}

func TestSeedCopiesTheInputMap(t *testing.T) {
	r := NewRegistry()
	defaults := map[string]float64{"rsi_lower": 45}
	r.Seed("momentum", defaults)

	defaults["rsi_lower"] = 99
	assert.Equal(t, 45.0, r.Active("momentum").Get("rsi_lower", 0))
}

func TestParameterSetGetFallback(t *testing.T) {
	r := NewRegistry()
	ps := r.Seed("momentum", map[string]float64{"rsi_lower": 45})

	assert.Equal(t, 45.0, ps.Get("rsi_lower", 0))
	assert.Equal(t, 1.1, ps.Get("volume_ratio", 1.1), "absent parameters fall back to the default")
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	r := NewRegistry()
	r.Seed("momentum", map[string]float64{"rsi_lower": 45})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Activate("momentum", map[string]float64{"rsi_lower": 40})
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			ps := r.Active("momentum")
			assert.NotNil(t, ps)
		}()
	}
	wg.Wait()

	assert.Equal(t, 11, r.Active("momentum").Version)
}
