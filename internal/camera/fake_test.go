package camera

import (
	"context"
	"testing"
	"time"
)

func TestFakeSource_ReadProducesAmbientFrame(t *testing.T) {
	src := NewFakeSource(4, 4, time.Millisecond)
	src.SetAmbient(22.5)

	ctx := context.Background()
	f, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Width != 4 || f.Height != 4 {
		t.Fatalf("unexpected frame size %dx%d", f.Width, f.Height)
	}
	if f.Ambient != 22.5 {
		t.Fatalf("expected Frame.Ambient 22.5, got %f", f.Ambient)
	}
	for _, v := range f.Pixels {
		if v != 22.5 {
			t.Fatalf("expected flat ambient 22.5, got %f", v)
		}
	}
}

func TestFakeSource_InjectedBlobRaisesTemperature(t *testing.T) {
	src := NewFakeSource(8, 8, time.Millisecond)
	src.SetAmbient(20)
	src.Inject(4, 4, 1, 10)

	f, err := src.Read(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.At(4, 4) != 30 {
		t.Fatalf("expected blob center at 30, got %f", f.At(4, 4))
	}
	if f.At(0, 0) != 20 {
		t.Fatalf("expected far corner at ambient 20, got %f", f.At(0, 0))
	}
}

func TestFakeSource_ReadCancelled(t *testing.T) {
	src := NewFakeSource(4, 4, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Read(ctx)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestFakeSource_ClearBlobsResetsToAmbient(t *testing.T) {
	src := NewFakeSource(4, 4, time.Millisecond)
	src.SetAmbient(19)
	src.Inject(2, 2, 2, 10)
	src.ClearBlobs()

	f, err := src.Read(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, v := range f.Pixels {
		if v != 19 {
			t.Fatalf("expected flat 19 after clearing blobs, got %f", v)
		}
	}
}
