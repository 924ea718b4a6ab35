package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Debugw("estimated yaw", "yaw", 0.17, "valid", true)
	logger.Infof("matches: %d", 42)

	test.That(t, logs.Len(), test.ShouldEqual, 2)
	entries := logs.All()
	test.That(t, entries[0].Message, test.ShouldEqual, "estimated yaw")
	test.That(t, entries[0].Level, test.ShouldEqual, zapcore.DebugLevel)
	test.That(t, entries[0].ContextMap()["yaw"], test.ShouldEqual, 0.17)
	test.That(t, entries[0].ContextMap()["valid"], test.ShouldBeTrue)
	test.That(t, entries[1].Message, test.ShouldEqual, "matches: 42")
}

func TestSublogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	sub := logger.Sublogger("alignment").Sublogger("keypoints")
	sub.Warn("no features")

	test.That(t, logs.Len(), test.ShouldEqual, 1)
	test.That(t, logs.All()[0].LoggerName, test.ShouldEqual, "alignment.keypoints")
}

func TestSetLevel(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.SetLevel(zapcore.WarnLevel)
	test.That(t, logger.GetLevel(), test.ShouldEqual, zapcore.WarnLevel)

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Errorw("kept", "err", "boom")
	test.That(t, logs.Len(), test.ShouldEqual, 1)
	test.That(t, logs.All()[0].Message, test.ShouldEqual, "kept")
}

func TestBlankLogger(t *testing.T) {
	logger := NewBlankLogger("blank")
	logger.Info("goes nowhere")
	test.That(t, logger.GetLevel(), test.ShouldEqual, zapcore.DebugLevel)
	test.That(t, logger.Sync(), test.ShouldBeNil)
}
