package heatcense

import (
	"testing"
	"time"
)

func flatFrame(w, h int, ambient float64, seq uint64, ts time.Time) *Frame {
	pixels := make([]float64, w*h)
	for i := range pixels {
		pixels[i] = ambient
	}
	return &Frame{Width: w, Height: h, Pixels: pixels, Timestamp: ts, SeqNum: seq}
}

func withHotBlock(f *Frame, x0, y0, x1, y1 int, temp float64) *Frame {
	out := f.Clone()
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			out.Pixels[y*out.Width+x] = temp
		}
	}
	return out
}

func TestEngine_EmptyRoomStaysUnoccupied(t *testing.T) {
	e := NewEngine(8, 8, DefaultEngineParams())
	now := time.Now()

	var last OccupancyUpdate
	for i := 0; i < 50; i++ {
		last = e.Process(flatFrame(8, 8, 21, uint64(i), now.Add(time.Duration(i)*time.Second)))
	}

	if last.Occupied {
		t.Fatalf("expected unoccupied room, got occupied with count %d", last.CountPersons)
	}
}

func TestEngine_WalkInIsDetected(t *testing.T) {
	e := NewEngine(8, 8, DefaultEngineParams())
	now := time.Now()

	for i := 0; i < 30; i++ {
		e.Process(flatFrame(8, 8, 21, uint64(i), now.Add(time.Duration(i)*time.Second)))
	}

	// A warm body walking across the room: the block moves two pixels per
	// frame, so it always lands on pixels the model has only seen at
	// ambient, and the tracker sees the movement that promotes a Candidate
	// to Person.
	var last OccupancyUpdate
	for i := 0; i < 4; i++ {
		base := flatFrame(8, 8, 21, uint64(30+i), now.Add(time.Duration(30+i)*time.Second))
		last = e.Process(withHotBlock(base, 2*i, 3, 2*i+1, 4, 33))
	}

	if !last.Occupied || last.CountPersons < 1 {
		t.Fatalf("expected occupied room with at least 1 person, got occupied=%v count=%d", last.Occupied, last.CountPersons)
	}
}

func TestEngine_OccupiedMatchesCountInvariant(t *testing.T) {
	e := NewEngine(8, 8, DefaultEngineParams())
	now := time.Now()

	for i := 0; i < 40; i++ {
		frame := flatFrame(8, 8, 21, uint64(i), now.Add(time.Duration(i)*time.Second))
		if i > 20 {
			frame = withHotBlock(frame, 0, 0, 1, 1, 32)
		}
		upd := e.Process(frame)
		if upd.Occupied != (upd.CountPersons > 0) {
			t.Fatalf("frame %d: occupied=%v but count=%d", i, upd.Occupied, upd.CountPersons)
		}
	}
}
