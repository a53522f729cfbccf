package persistence

// Key layout of every record and index in the store.

func workspaceKey(workspaceID string) string {
	return "workspaces/" + workspaceID + "/workspace.json"
}

func workspaceActsPrefix(workspaceID string) string {
	return "workspaces/" + workspaceID + "/acts/"
}

func workspaceTriggersPrefix(workspaceID string) string {
	return "workspaces/" + workspaceID + "/triggers/"
}

func actKey(actID string) string {
	return "acts/" + actID + "/act.json"
}

func actCancelKey(actID string) string {
	return "acts/" + actID + "/cancel"
}

func actTasksPrefix(actID string) string {
	return "acts/" + actID + "/tasks/"
}

func taskKey(actID, taskID string) string {
	return actTasksPrefix(actID) + taskID + ".json"
}

// taskLocatorKey maps a task id to its act, so tasks can be read by id alone.
func taskLocatorKey(taskID string) string {
	return "tasks/" + taskID + "/act"
}

func taskGenerationsPrefix(taskID string) string {
	return "tasks/" + taskID + "/generations/"
}

func generationKey(generationID string) string {
	return "generations/" + generationID + ".json"
}

func triggerKey(triggerID string) string {
	return "triggers/" + triggerID + ".json"
}

const triggersPrefix = "triggers/"
