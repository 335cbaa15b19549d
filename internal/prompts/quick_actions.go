// internal/prompts/quick_actions.go
package prompts

// QuickAction 预置的剧本修改指令
type QuickAction struct {
	Name        string `json:"name"`
	Instruction string `json:"instruction"`
}

var quickActions = []QuickAction{
	{Name: "增加更多专业解释", Instruction: "请在剧本中增加更多专业解释，包括相关医学原理、科学依据等，但保持通俗易懂。"},
	{Name: "添加实际案例", Instruction: "请在剧本中添加一些实际案例或真实故事，使内容更有说服力和代入感。"},
	{Name: "增加互动环节", Instruction: "请在剧本中增加一些互动环节，如问答、小游戏或实践指导，让观众能够参与其中。"},
	{Name: "加入趣味元素", Instruction: "请在剧本中加入一些趣味元素，如比喻、类比或幽默表达，使内容更加生动有趣。"},
}

// QuickActions 返回全部快捷操作（副本）
func QuickActions() []QuickAction {
	out := make([]QuickAction, len(quickActions))
	copy(out, quickActions)
	return out
}

// QuickActionInstruction 按名称查找指令
func QuickActionInstruction(name string) (string, bool) {
	for _, a := range quickActions {
		if a.Name == name {
			return a.Instruction, true
		}
	}
	return "", false
}
