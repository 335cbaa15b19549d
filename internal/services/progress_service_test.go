package services

import (
	"testing"
	"time"
)

func TestProgressTrackerLifecycle(t *testing.T) {
	ps := NewProgressService()
	tracker := ps.CreateTracker("task-1", "session-1")

	sub := tracker.Subscribe()
	initial := <-sub
	if initial.Status != ProgressRunning || initial.Progress != 0 {
		t.Fatalf("初始状态不符: %+v", initial)
	}

	tracker.Advance(60, "一半")
	tracker.Advance(60, "超过上限")
	if got := tracker.Snapshot().Progress; got != 99 {
		t.Fatalf("完成前进度不应超过 99，实际为 %d", got)
	}

	tracker.UpdateProgress(10, "")
	if got := tracker.Snapshot().Progress; got != 99 {
		t.Fatalf("进度不应回退，实际为 %d", got)
	}

	tracker.Complete("完成", "result")
	select {
	case <-tracker.Done:
	default:
		t.Fatal("完成后 Done 应被关闭")
	}

	tracker.Fail("迟到的失败")
	if snap := tracker.Snapshot(); snap.Status != ProgressCompleted || snap.Result != "result" {
		t.Fatalf("结束后的状态不应再改变: %+v", snap)
	}

	tracker.Unsubscribe(sub)
	if removed := ps.CleanupCompletedTasks(-time.Second); removed != 1 {
		t.Fatalf("应清理 1 个已完成任务，实际为 %d", removed)
	}
	if _, ok := ps.GetTracker("task-1"); ok {
		t.Fatal("清理后不应再能查到任务")
	}
}
