package miniaudio

import "sync"

// playbackQueue buffers audio between SendAudio and the device callback.
// Marks fire once every byte queued before them has been handed to the
// device.
type playbackQueue struct {
	mu    sync.Mutex
	audio []byte
	marks []playbackMark
}

type playbackMark struct {
	name     string
	position int
	callback func(string)
}

func (q *playbackQueue) push(audio []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.audio = append(q.audio, audio...)
}

func (q *playbackQueue) mark(name string, callback func(string)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.marks = append(q.marks, playbackMark{name: name, position: len(q.audio), callback: callback})
}

// clear drops queued audio. Pending marks are released so waiters do not
// hang on audio that will never play.
func (q *playbackQueue) clear() {
	q.mu.Lock()
	marks := q.marks
	q.audio = nil
	q.marks = nil
	q.mu.Unlock()
	fireMarks(marks)
}

func (q *playbackQueue) buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.audio)
}

// fill copies up to len(out) queued bytes into out and zero-fills the rest.
func (q *playbackQueue) fill(out []byte) int {
	q.mu.Lock()
	n := copy(out, q.audio)
	q.audio = q.audio[n:]
	if len(q.audio) == 0 {
		q.audio = nil
	}
	clear(out[n:])

	passed := 0
	for i := range q.marks {
		if q.marks[i].position <= n {
			passed++
			continue
		}
		q.marks[i].position -= n
	}
	var fired []playbackMark
	if passed > 0 {
		fired = q.marks[:passed]
		q.marks = q.marks[passed:]
	}
	q.mu.Unlock()

	if len(fired) > 0 {
		go fireMarks(fired)
	}
	return n
}

func fireMarks(marks []playbackMark) {
	for _, mark := range marks {
		if mark.callback != nil {
			mark.callback(mark.name)
		}
	}
}
