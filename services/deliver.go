package services

// deliver replaces any undelivered snapshot on ch with the latest one, so a
// slow consumer never blocks the subscription loop and always sees current
// state on its next receive.
func deliver[T any](ch chan []T, snapshot []T) {
	for {
		select {
		case ch <- snapshot:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
