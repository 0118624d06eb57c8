package domain

// GroupSessionRows folds a row stream sorted by (date, session id, exercise
// name, record id) into one view per session. Consecutive rows of a session
// sharing an exercise name form one series. The input order is relied upon;
// rows are never regrouped by key.
func GroupSessionRows(rows []SessionRow) []SessionView {
	views := make([]SessionView, 0)
	for start := 0; start < len(rows); {
		end := start + 1
		for end < len(rows) && rows[end].SessionID == rows[start].SessionID {
			end++
		}
		views = append(views, groupSession(rows[start:end]))
		start = end
	}
	return views
}

func groupSession(run []SessionRow) SessionView {
	view := SessionView{
		Date:      run[0].Date,
		Username:  run[0].Username,
		Exercises: []string{},
		Reps:      [][]int{},
		Weights:   [][]float64{},
	}
	for _, row := range run {
		if !row.HasRecord {
			continue
		}
		last := len(view.Exercises) - 1
		if last < 0 || view.Exercises[last] != row.ExerciseName {
			view.Exercises = append(view.Exercises, row.ExerciseName)
			view.Reps = append(view.Reps, []int{})
			view.Weights = append(view.Weights, []float64{})
			last++
		}
		view.Reps[last] = append(view.Reps[last], row.Reps)
		view.Weights[last] = append(view.Weights[last], row.Weight)
	}
	return view
}
