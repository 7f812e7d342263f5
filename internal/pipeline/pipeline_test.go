package pipeline

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func recorder(trace *[]string, name string, fail bool) Step {
	return Step{
		Name: name,
		Run: func(context.Context) error {
			*trace = append(*trace, "run:"+name)
			if fail {
				return errors.New(name + " failed")
			}
			return nil
		},
		Compensate: func(context.Context) error {
			*trace = append(*trace, "undo:"+name)
			return nil
		},
	}
}

func TestRun_AllSucceed(t *testing.T) {
	var trace []string
	err := Run(context.Background(), quietLogger(),
		recorder(&trace, "a", false),
		recorder(&trace, "b", false),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"run:a", "run:b"}, trace)
}

func TestRun_CompensatesInReverse(t *testing.T) {
	var trace []string
	err := Run(context.Background(), quietLogger(),
		recorder(&trace, "a", false),
		recorder(&trace, "b", false),
		recorder(&trace, "c", true),
		recorder(&trace, "d", false),
	)
	require.Error(t, err)

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "c", se.Step)
	assert.EqualError(t, errors.Unwrap(err), "c failed")
	assert.Equal(t, []string{"run:a", "run:b", "run:c", "undo:b", "undo:a"}, trace)
}

func TestRun_CompensationErrorDoesNotStopOthers(t *testing.T) {
	var trace []string
	bad := recorder(&trace, "b", false)
	bad.Compensate = func(context.Context) error {
		trace = append(trace, "undo:b")
		return errors.New("boom")
	}
	err := Run(context.Background(), quietLogger(),
		recorder(&trace, "a", false),
		bad,
		recorder(&trace, "c", true),
	)
	require.EqualError(t, errors.Unwrap(err), "c failed")
	assert.Equal(t, []string{"run:a", "run:b", "run:c", "undo:b", "undo:a"}, trace)
}
