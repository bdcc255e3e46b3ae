package reports

// DefaultPageSize is the number of reports shown per history page.
const DefaultPageSize = 15

// Pager tracks the current page over a collection of count items.
// The only state kept between calls is the page number.
type Pager struct {
	size  int
	page  int
	count int
}

// NewPager creates a pager on page 1. A non-positive size means DefaultPageSize.
func NewPager(size int) *Pager {
	if size < 1 {
		size = DefaultPageSize
	}
	return &Pager{size: size, page: 1}
}

func (p *Pager) Size() int  { return p.size }
func (p *Pager) Page() int  { return p.page }
func (p *Pager) Count() int { return p.count }

// TotalPages is max(1, ceil(count/size)).
func (p *Pager) TotalPages() int {
	if p.count == 0 {
		return 1
	}
	return (p.count + p.size - 1) / p.size
}

// SetCount updates the collection size and clamps the current page.
func (p *Pager) SetCount(n int) {
	if n < 0 {
		n = 0
	}
	p.count = n
	p.page = p.clamp(p.page)
}

// Reset returns to page 1.
func (p *Pager) Reset() { p.page = 1 }

func (p *Pager) HasNext() bool { return p.page < p.TotalPages() }
func (p *Pager) HasPrev() bool { return p.page > 1 }

// Next advances one page; on the last page it does nothing.
func (p *Pager) Next() bool {
	if !p.HasNext() {
		return false
	}
	p.page++
	return true
}

// Prev goes back one page; on page 1 it does nothing.
func (p *Pager) Prev() bool {
	if !p.HasPrev() {
		return false
	}
	p.page--
	return true
}

// Goto jumps to page n, clamped to [1, TotalPages].
func (p *Pager) Goto(n int) int {
	p.page = p.clamp(n)
	return p.page
}

func (p *Pager) clamp(n int) int {
	if n < 1 {
		return 1
	}
	if total := p.TotalPages(); n > total {
		return total
	}
	return n
}

// Bounds returns the half-open index range of the current page.
func (p *Pager) Bounds() (lo, hi int) {
	lo = (p.page - 1) * p.size
	hi = lo + p.size
	if lo > p.count {
		lo = p.count
	}
	if hi > p.count {
		hi = p.count
	}
	return lo, hi
}

// Window returns the items of the pager's current page. The pager's count
// is synchronized to len(items) first.
func Window[T any](p *Pager, items []T) []T {
	p.SetCount(len(items))
	lo, hi := p.Bounds()
	return items[lo:hi]
}

// Pages splits items into consecutive pages of size. An empty input has no
// pages.
func Pages[T any](items []T, size int) [][]T {
	if size < 1 {
		size = DefaultPageSize
	}
	pages := make([][]T, 0, (len(items)+size-1)/size)
	for lo := 0; lo < len(items); lo += size {
		hi := min(lo+size, len(items))
		pages = append(pages, items[lo:hi])
	}
	return pages
}
