package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmissionBound(t *testing.T) {
	a := NewAdmission(1)

	release, err := a.Admit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, a.InUse())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = a.Admit(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
	assert.Equal(t, 0, a.InUse())

	release, err = a.Admit(context.Background())
	require.NoError(t, err)
	release()
}

func TestAdmissionCloseRejectsWaiters(t *testing.T) {
	a := NewAdmission(1)
	release, err := a.Admit(context.Background())
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := a.Admit(context.Background())
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	a.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrAdmissionClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by Close")
	}

	_, err = a.Admit(context.Background())
	assert.ErrorIs(t, err, ErrAdmissionClosed)

	// Held tickets stay valid and release cleanly.
	release()
	assert.Equal(t, 0, a.InUse())
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Summary{}, summarize(nil))

	s := summarize([]float64{40, 10, 30, 20})
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 25, s.Mean, 1e-9)
	assert.Equal(t, 20.0, s.P50)
	assert.Equal(t, 40.0, s.P95)
	assert.Equal(t, 40.0, s.Max)
}
