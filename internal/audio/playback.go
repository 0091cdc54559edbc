package audio

import (
	"time"

	"go.uber.org/zap"
)

// Playback is the replay handle of a captured artifact.
type Playback struct {
	artifact  *Artifact
	playing   Playing
	startedAt time.Time
	offset    time.Duration
}

func (p *Playback) QuestionID() int { return p.artifact.QuestionID }

func (p *Playback) Playing() bool { return p.playing != nil }

// Replay starts playing the captured recording for questionID from the
// current position. It does nothing unless the recording is captured.
func (r *Recorder) Replay(questionID int) error {
	a, ok := r.artifacts[questionID]
	if !ok || a.state != StateCaptured || r.output == nil || r.closed {
		return nil
	}

	if r.playback == nil || r.playback.artifact != a {
		r.stopPlayback()
		r.playback = &Playback{artifact: a}
	}
	p := r.playback
	r.finishIfEnded(p)
	if p.playing != nil {
		return nil
	}
	if p.offset >= r.duration(a) {
		p.offset = 0
	}

	sampleRate, pcm, err := wavPCM(a.wav)
	if err != nil {
		return err
	}
	from := pcmOffset(p.offset.Seconds(), sampleRate)
	if from > len(pcm) {
		from = len(pcm)
	}

	playing, err := r.output.Play(pcm[from:], sampleRate)
	if err != nil {
		r.logger.Warn("playback failed", zap.Int("question_id", questionID), zap.Error(err))
		return err
	}
	p.playing = playing
	p.startedAt = r.sched.Now()
	return nil
}

// Pause stops playback and keeps the position.
func (r *Recorder) Pause() {
	p := r.playback
	if p == nil || p.playing == nil {
		return
	}
	p.offset = r.position(p)
	if err := p.playing.Stop(); err != nil {
		r.logger.Warn("stop playback", zap.Error(err))
	}
	p.playing = nil
}

// Seek moves the playback position, clamped to the recording.
func (r *Recorder) Seek(questionID int, offset time.Duration) error {
	a, ok := r.artifacts[questionID]
	if !ok || a.state != StateCaptured {
		return nil
	}
	if r.playback == nil || r.playback.artifact != a {
		r.stopPlayback()
		r.playback = &Playback{artifact: a}
	}

	if offset < 0 {
		offset = 0
	}
	if total := r.duration(a); offset > total {
		offset = total
	}

	r.finishIfEnded(r.playback)
	wasPlaying := r.playback.playing != nil
	r.Pause()
	r.playback.offset = offset
	if wasPlaying {
		return r.Replay(questionID)
	}
	return nil
}

// Position reports the playback position for questionID.
func (r *Recorder) Position(questionID int) (time.Duration, bool) {
	p := r.playback
	if p == nil || p.artifact.QuestionID != questionID {
		return 0, false
	}
	r.finishIfEnded(p)
	return r.position(p), p.playing != nil
}

// finishIfEnded releases a playback that has run past the end of its
// recording and parks the position at the end.
func (r *Recorder) finishIfEnded(p *Playback) {
	if p == nil || p.playing == nil {
		return
	}
	total := r.duration(p.artifact)
	if p.offset+r.sched.Now().Sub(p.startedAt) < total {
		return
	}
	if err := p.playing.Stop(); err != nil {
		r.logger.Warn("stop playback", zap.Error(err))
	}
	p.playing = nil
	p.offset = total
}

func (r *Recorder) position(p *Playback) time.Duration {
	pos := p.offset
	if p.playing != nil {
		pos += r.sched.Now().Sub(p.startedAt)
	}
	if total := r.duration(p.artifact); pos > total {
		pos = total
	}
	return pos
}

func (r *Recorder) stopPlayback() {
	if r.playback == nil {
		return
	}
	r.Pause()
	r.playback = nil
}

// duration is measured from the PCM payload so playback clamps to what was
// actually captured.
func (r *Recorder) duration(a *Artifact) time.Duration {
	sampleRate, pcm, err := wavPCM(a.wav)
	if err != nil || sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(pcm)) / float64(bytesPerSecond(sampleRate)) * float64(time.Second))
}
