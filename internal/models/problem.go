package models

// Problem 저지에서 가져온 문제 메타데이터
type Problem struct {
	ID     string `json:"id" db:"problem_id"`
	Name   string `json:"name" db:"problem_name"`
	Rating int    `json:"rating" db:"problem_rating"`
	URL    string `json:"url,omitempty" db:"problem_url"`
}
