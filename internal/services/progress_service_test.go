// internal/services/progress_service_test.go
package services

import (
	"testing"
	"time"
)

func TestProgressTracker_SubscribeReceivesUpdates(t *testing.T) {
	svc := NewProgressService()
	tracker := svc.CreateTracker("task-1")

	updates := tracker.Subscribe()

	// 订阅后立即收到当前状态
	first := <-updates
	if first.Status != TaskStatusRunning || first.Progress != 0 {
		t.Fatalf("订阅应该立即收到初始状态: %+v", first)
	}

	tracker.UpdateProgress(40, "脚本已生成")
	update := <-updates
	if update.Progress != 40 || update.Message != "脚本已生成" {
		t.Fatalf("进度更新不正确: %+v", update)
	}

	tracker.Complete("")
	final := <-updates
	if final.Status != TaskStatusCompleted || final.Progress != 100 {
		t.Fatalf("完成状态不正确: %+v", final)
	}

	select {
	case <-tracker.Done:
	case <-time.After(time.Second):
		t.Fatal("Complete应该关闭Done通道")
	}
}

func TestProgressTracker_ProgressNeverDecreases(t *testing.T) {
	svc := NewProgressService()
	tracker := svc.CreateTracker("task-1")

	tracker.UpdateProgress(60, "")
	tracker.UpdateProgress(30, "后退的更新")

	if tracker.Progress != 60 {
		t.Fatalf("进度不应该回退，实际 %d", tracker.Progress)
	}
}

func TestProgressTracker_Fail(t *testing.T) {
	svc := NewProgressService()
	tracker := svc.CreateTracker("task-1")

	tracker.Fail("密钥池为空")

	if tracker.Status != TaskStatusFailed {
		t.Fatalf("任务状态应该是failed，实际 %s", tracker.Status)
	}

	select {
	case <-tracker.Done:
	case <-time.After(time.Second):
		t.Fatal("Fail应该关闭Done通道")
	}
}

func TestCreateTracker_Idempotent(t *testing.T) {
	svc := NewProgressService()

	first := svc.CreateTracker("task-1")
	second := svc.CreateTracker("task-1")

	if first != second {
		t.Fatal("相同任务ID应该返回同一个跟踪器")
	}
}

func TestCreateTracker_ReuseAfterFinish(t *testing.T) {
	svc := NewProgressService()

	// 客户端用同一任务ID重试：第一次失败后应该拿到全新的跟踪器并能再次结束
	first := svc.CreateTracker("task-1")
	first.Fail("密钥池为空")

	second := svc.CreateTracker("task-1")
	if second == first {
		t.Fatal("已结束的跟踪器应该被替换为新实例")
	}
	if second.Status != TaskStatusRunning || second.Progress != 0 {
		t.Fatalf("重试任务应该从初始状态开始: status=%s progress=%d", second.Status, second.Progress)
	}

	second.Fail("再次失败")
	select {
	case <-second.Done:
	case <-time.After(time.Second):
		t.Fatal("重试任务的Fail应该关闭Done通道")
	}

	third := svc.CreateTracker("task-1")
	third.Complete("")
	third.Complete("")

	if third.Status != TaskStatusCompleted {
		t.Fatalf("任务状态应该是completed，实际 %s", third.Status)
	}
}

func TestProgressTracker_TerminalStateIsFinal(t *testing.T) {
	svc := NewProgressService()
	tracker := svc.CreateTracker("task-1")

	tracker.Complete("")
	// 结束后的重复调用不触发panic，状态保持不变
	tracker.Fail("迟到的失败")
	tracker.Complete("")

	if tracker.Status != TaskStatusCompleted {
		t.Fatalf("结束后的状态不应该被覆盖，实际 %s", tracker.Status)
	}
}

func TestCleanupCompletedTasks(t *testing.T) {
	svc := NewProgressService()

	done := svc.CreateTracker("done-task")
	done.Complete("")
	svc.CreateTracker("running-task")

	svc.CleanupCompletedTasks(-time.Second)

	if _, exists := svc.GetTracker("done-task"); exists {
		t.Fatal("已完成的过期任务应该被清理")
	}
	if _, exists := svc.GetTracker("running-task"); !exists {
		t.Fatal("运行中的任务不应该被清理")
	}
}
