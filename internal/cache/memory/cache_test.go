package memory

import (
	"context"
	"testing"
	"time"
)

type payload struct {
	Answer string
	Scores []float64
}

func TestQueryRoundTripDoesNotAlias(t *testing.T) {
	c := New(time.Minute, time.Minute)
	ctx := context.Background()

	in := payload{Answer: "yes", Scores: []float64{0.9}}
	if err := c.SetQuery(ctx, "h", in, 0); err != nil {
		t.Fatalf("SetQuery() = %v", err)
	}
	in.Scores[0] = 0

	var out payload
	hit, err := c.GetQuery(ctx, "h", &out)
	if err != nil || !hit {
		t.Fatalf("GetQuery() = %v, %v", hit, err)
	}
	if out.Answer != "yes" || out.Scores[0] != 0.9 {
		t.Errorf("GetQuery() = %+v", out)
	}

	var miss payload
	if hit, _ := c.GetQuery(ctx, "other", &miss); hit {
		t.Error("unexpected hit")
	}
}

func TestQueryExpires(t *testing.T) {
	c := New(time.Minute, time.Minute)
	ctx := context.Background()
	if err := c.SetQuery(ctx, "h", payload{Answer: "x"}, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)

	var out payload
	if hit, _ := c.GetQuery(ctx, "h", &out); hit {
		t.Error("expired entry returned")
	}
}

func TestInvalidateQueriesKeepsEmbeddings(t *testing.T) {
	c := New(time.Minute, time.Minute)
	ctx := context.Background()

	_ = c.SetQuery(ctx, "a", payload{Answer: "a"}, 0)
	_ = c.SetQuery(ctx, "b", payload{Answer: "b"}, 0)
	_ = c.SetEmbedding(ctx, "e", []float32{1, 2, 3})

	if err := c.InvalidateQueries(ctx); err != nil {
		t.Fatalf("InvalidateQueries() = %v", err)
	}
	if c.ItemCount() != 1 {
		t.Errorf("ItemCount() = %d, want only the embedding left", c.ItemCount())
	}

	vec, ok, err := c.GetEmbedding(ctx, "e")
	if err != nil || !ok || len(vec) != 3 {
		t.Fatalf("GetEmbedding() = %v, %v, %v", vec, ok, err)
	}
	vec[0] = 42
	again, _, _ := c.GetEmbedding(ctx, "e")
	if again[0] != 1 {
		t.Error("GetEmbedding must return a copy")
	}
}
