package services

import "testing"

func TestComputeStats(t *testing.T) {
	script := "场景一：厨房\n妈妈：今天少放点盐。\n爸爸：好的。\n场景二：医院\n医生：注意血压。"

	stats := ComputeStats(script, 3)

	wantWords := len([]rune("场景一：厨房妈妈：今天少放点盐。爸爸：好的。场景二：医院医生：注意血压。"))
	if stats.WordCount != wantWords {
		t.Fatalf("字数应为 %d，实际为 %d", wantWords, stats.WordCount)
	}
	if stats.SceneCount != 2 {
		t.Fatalf("场景数应为 2，实际为 %d", stats.SceneCount)
	}
	// 场景一：、妈妈：、爸爸：、场景二：、医生：
	if stats.CharacterCount != 5 {
		t.Fatalf("对白标记数应为 5，实际为 %d", stats.CharacterCount)
	}
	if stats.TermCount != 3 {
		t.Fatalf("术语数应为 3，实际为 %d", stats.TermCount)
	}
}

func TestComputeStatsFloors(t *testing.T) {
	stats := ComputeStats("一段没有场景标记也没有对白的文字", 0)

	if stats.SceneCount != 1 {
		t.Fatalf("场景数下限为 1，实际为 %d", stats.SceneCount)
	}
	if stats.CharacterCount != 2 {
		t.Fatalf("角色数下限为 2，实际为 %d", stats.CharacterCount)
	}
	if stats.WordCount != 16 {
		t.Fatalf("字数应为 16，实际为 %d", stats.WordCount)
	}
}
