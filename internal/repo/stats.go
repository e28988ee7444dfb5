package repo

type Stats struct {
	ByStatus   map[string]int `json:"by_status"`
	Overdue    int            `json:"overdue"`
	TotalTasks int            `json:"total_tasks"`
}
