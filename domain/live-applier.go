package domain

// LiveApplier applies stream updates to a bootstrapped book, one at a time,
// only when they continue the book's sequence exactly.
type LiveApplier struct {
	book      *OrderBook
	validator DepthUpdateValidator
}

func NewLiveApplier(book *OrderBook, validator DepthUpdateValidator) *LiveApplier {
	return &LiveApplier{
		book:      book,
		validator: validator,
	}
}

// Apply returns nil when the update was applied,
// ErrOrderBookUpdateIsOutdated when it was dropped as already applied, and
// ErrOrderBookUpdateIsOutOfSequence when the book must be resynchronized.
// The book is untouched unless the result is nil.
func (a *LiveApplier) Apply(update *OrderBookUpdate) error {
	if err := a.validator.IsValidUpd(update, a.book.LastUpdateID()); err != nil {
		return err
	}

	a.book.ApplyUpdate(update)
	return nil
}
