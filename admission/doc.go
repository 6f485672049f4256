// Package admission provides a dual-capacity gate that bounds how many
// holders may be admitted at once and how much aggregate weight they may
// carry.
//
// Both dimensions are enforced independently: a request is admitted only
// when one slot and its weight are both free. Waiters are served in FIFO
// order. Every admission is represented by a Permit whose Release is
// idempotent, so a holder can release early and a later cleanup path can
// release again without double-counting.
//
//	gate := admission.New(admission.Config{Name: "fragments", ConcurrencyLimit: 4, BufferLimit: 64})
//	permit, err := gate.Acquire(ctx, 8)
//	if err != nil {
//	    return err
//	}
//	defer permit.Release()
package admission
