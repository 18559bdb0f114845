// VideoFilters describe user-provided filters to narrow the video list.
package dto

type VideoFilters struct {
	Status string
	RunID  string
	Limit  int
	Offset int
}
