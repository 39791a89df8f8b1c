// internal/detect/scheduler.go
package detect

// schedule converts a qualifying crossing at buffer-relative candidate
// index c into an on/off event pair. The on event fires at max(c, 0) — a
// crossing resolved retroactively (c < 0, possible when futureSpan reaches
// into the previous buffer) is reported on the first sample of this buffer,
// with CrossingIndex preserving where it really happened. The off event is
// emitted in the same buffer when it fits and deferred otherwise.
func (d *Detector) schedule(b Block, bufferLen, c int, postVal, postThresh float32) {
	lr := 0.0
	if d.cfg.Mode == ThresholdAdaptive {
		lr = d.currLearningRate
	}

	onOffset := c
	if onOffset < 0 {
		onOffset = 0
	}

	on := Event{
		SampleIndex:   b.StartIndex + int64(onOffset),
		On:            true,
		CrossingIndex: b.StartIndex + int64(c),
		Level:         postVal,
		Threshold:     postThresh,
		Rising:        postVal > postThresh,
		LearningRate:  lr,
	}
	d.emitEvent(on)

	off := on
	off.On = false
	offOffset := onOffset + d.eventDurationSamp
	off.SampleIndex = b.StartIndex + int64(offOffset)

	if offOffset <= bufferLen {
		d.emitEvent(off)
	} else {
		// Overwriting any previously deferred off event is deliberate:
		// event duration can change during acquisition and events can
		// outlast the timeout, so a newer off always supersedes an older
		// one — whatever was turned on is turned off by the latest off.
		d.pending = &off
	}

	d.sampToReenable = c + 1 + d.timeoutSamp

	if d.cfg.Mode == ThresholdRandom {
		d.currRandomThresh = d.nextRandomThresh()
	}
}

// emitDuePending emits a deferred off event once its absolute sample falls
// inside the current buffer. An off event that somehow fell behind the
// buffer start is emitted immediately at the buffer's first sample.
func (d *Detector) emitDuePending(b Block, bufferLen int) {
	if d.pending == nil {
		return
	}
	offset := int(d.pending.SampleIndex - b.StartIndex)
	if offset < 0 {
		offset = 0
	}
	if offset < bufferLen {
		ev := *d.pending
		ev.SampleIndex = b.StartIndex + int64(offset)
		d.emitEvent(ev)
		d.pending = nil
	}
}
