// Package stream multiplexes concurrently produced fragments into a single
// ordered output channel under bounded resource usage.
//
// Producers obtain a Fragment from Stream.CreateFragment, which blocks while
// the stream already has its limit of open fragments or of buffered weight.
// Items sent into a fragment are forwarded by a single flush loop goroutine,
// fragment by fragment in creation order, so the output is the concatenation
// of every fragment's items no matter which producer finishes first:
//
//	out := channel.New[Row]()
//	s, err := stream.New[Row](ctx, out, 8, 64)
//	if err != nil {
//	    return err
//	}
//
//	f, err := s.CreateFragment(ctx)
//	if err != nil {
//	    return err
//	}
//	go func() {
//	    for _, r := range rows {
//	        f.Send(r)
//	    }
//	    f.Finish()
//	}()
//
//	s.Finish() // consumer sees channel.ErrEndOfStream after earlier fragments
//
// A fragment error, a Stream.SendError condition, or cancellation of the
// stream's context stops the flush loop for good; the consumer reads an
// ordered prefix of items followed by exactly one terminal condition.
//
// The flush loop yields to the scheduler after forwarding the fairness
// threshold's worth of item bytes without ever waiting. WithFairnessThreshold(0)
// yields as often as possible, which is useful for exercising interleavings.
package stream
