package coroutine_test

import (
	"fmt"
	"testing"

	"github.com/open-coroutine/opencoroutine-go/coroutine"
)

func Example() {
	co := coroutine.New(func(first coroutine.Wake, y coroutine.Yielder) any {
		for i := 1; i <= 3; i++ {
			fmt.Println("coroutine:", i)
			y.Suspend(i, coroutine.NoDeadline)
		}
		fmt.Println("coroutine: done")
		return "ok"
	}, nil)

	fmt.Println("not started yet")
	w := coroutine.Wake{}
	for {
		st, err := co.ResumeWith(w)
		if err != nil {
			break
		}
		if st.Kind == coroutine.Complete {
			fmt.Println("returned:", st.Return)
			break
		}
		fmt.Println("yielded:", st.Yield)
	}

	// Output:
	// not started yet
	// coroutine: 1
	// yielded: 1
	// coroutine: 2
	// yielded: 2
	// coroutine: 3
	// yielded: 3
	// coroutine: done
	// returned: ok
}

func TestResumeWithAfterCompleteIsInvalidState(t *testing.T) {
	co := coroutine.New(func(first coroutine.Wake, y coroutine.Yielder) any {
		return 42
	}, nil)

	st, err := co.ResumeWith(coroutine.Wake{})
	if err != nil {
		t.Fatalf("unexpected error on first resume: %v", err)
	}
	if st.Kind != coroutine.Complete || st.Return != 42 {
		t.Fatalf("expected Complete(42), got %+v", st)
	}

	if _, err := co.ResumeWith(coroutine.Wake{}); err != coroutine.ErrInvalidState {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestPanicBecomesErrored(t *testing.T) {
	co := coroutine.New(func(first coroutine.Wake, y coroutine.Yielder) any {
		panic("boom")
	}, nil)

	st, err := co.ResumeWith(coroutine.Wake{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Kind != coroutine.Errored {
		t.Fatalf("expected Errored, got %v", st.Kind)
	}
	if st.Err == nil || st.Err.Error() != "boom" {
		t.Fatalf("expected err message %q, got %v", "boom", st.Err)
	}
}

type countingListener struct {
	coroutine.BaseListener
	transitions []coroutine.Kind
}

func (l *countingListener) OnStateChanged(prev, next coroutine.Kind, id coroutine.ID) {
	l.transitions = append(l.transitions, next)
}

func TestListenerObservesTransitionsInOrder(t *testing.T) {
	lst := &countingListener{}
	bus := coroutine.NewListenerBus(lst)

	co := coroutine.New(func(first coroutine.Wake, y coroutine.Yielder) any {
		y.Suspend(nil, coroutine.NoDeadline)
		return nil
	}, bus)

	if _, err := co.ResumeWith(coroutine.Wake{}); err != nil {
		t.Fatal(err)
	}
	if _, err := co.ResumeWith(coroutine.Wake{}); err != nil {
		t.Fatal(err)
	}

	want := []coroutine.Kind{coroutine.Running, coroutine.Suspended, coroutine.Running, coroutine.Complete}
	if len(lst.transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", lst.transitions, want)
	}
	for i := range want {
		if lst.transitions[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", lst.transitions, want)
		}
	}
}

func TestCurrentInsideAndOutsideCoroutine(t *testing.T) {
	if _, ok := coroutine.Current(); ok {
		t.Fatal("expected no current coroutine outside any coroutine body")
	}

	seen := make(chan bool, 1)
	co := coroutine.New(func(first coroutine.Wake, y coroutine.Yielder) any {
		self, ok := coroutine.Current()
		seen <- ok && self.ID() == y.ID()
		return nil
	}, nil)

	if _, err := co.ResumeWith(coroutine.Wake{}); err != nil {
		t.Fatal(err)
	}
	if !<-seen {
		t.Fatal("coroutine body did not observe itself as Current")
	}
}

func TestMonotonicIDs(t *testing.T) {
	a := coroutine.New(func(coroutine.Wake, coroutine.Yielder) any { return nil }, nil)
	b := coroutine.New(func(coroutine.Wake, coroutine.Yielder) any { return nil }, nil)
	if b.ID() <= a.ID() {
		t.Fatalf("expected strictly increasing IDs, got %d then %d", a.ID(), b.ID())
	}
}
