package app

import (
	"testing"

	"gocv.io/x/gocv"
)

func newFrame(rows int) *gocv.Mat {
	m := gocv.NewMatWithSize(rows, 4, gocv.MatTypeCV8UC1)
	return &m
}

func TestFrameSlot_KeepsLatest(t *testing.T) {
	slot := newFrameSlot()
	defer slot.close()

	if slot.put(newFrame(1)) {
		t.Error("first put should not drop a frame")
	}
	if !slot.put(newFrame(2)) {
		t.Error("second put should drop the waiting frame")
	}

	select {
	case <-slot.ready:
	default:
		t.Fatal("slot should signal a waiting frame")
	}

	f := slot.take()
	if f == nil {
		t.Fatal("take() returned nil")
	}
	defer f.Close()
	if f.Rows() != 2 {
		t.Errorf("took frame with %d rows, want the latest (2)", f.Rows())
	}
	if slot.take() != nil {
		t.Error("slot should be empty after take")
	}
}

func TestFrameSlot_Closed(t *testing.T) {
	slot := newFrameSlot()
	slot.put(newFrame(1))
	slot.close()

	if slot.take() != nil {
		t.Error("close should release the waiting frame")
	}
	if slot.put(newFrame(1)) {
		t.Error("put after close should not report a drop")
	}
	if slot.take() != nil {
		t.Error("put after close should not store the frame")
	}
}
