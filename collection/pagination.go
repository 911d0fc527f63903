package collection

import "github.com/stevemurr/restcollection/transport"

type pageMove int

const (
	moveNext pageMove = iota
	movePrev
	moveTo
)

// pageParams returns a copy of p moved by one window. count > 0 overrides the
// limit first. The offset defaults to 0 and is not clamped: prev from the first
// page goes negative.
func pageParams(p Params, move pageMove, page, count int) (Params, error) {
	out := p.Clone()
	if out == nil {
		out = Params{}
	}
	if count > 0 {
		out[ParamLimit] = count
	}
	limit, ok := out.Int(ParamLimit)
	if !ok || limit == 0 {
		return nil, ErrNoLimit
	}
	offset, _ := out.Int(ParamOffset)

	switch move {
	case moveNext:
		offset += limit
	case movePrev:
		offset -= limit
	case moveTo:
		offset = limit * (page - 1)
	}
	out[ParamOffset] = offset
	return out, nil
}

// Next moves one page forward and refetches. count > 0 also changes the page size.
// Without a resolvable limit the returned future is already rejected with ErrNoLimit.
func (c *Collection) Next(count int) (*Future[[]*Record], error) {
	return c.paginate(moveNext, 0, count)
}

// Prev moves one page back and refetches.
func (c *Collection) Prev(count int) (*Future[[]*Record], error) {
	return c.paginate(movePrev, 0, count)
}

// Page jumps to the 1-indexed page n and refetches.
func (c *Collection) Page(n, count int) (*Future[[]*Record], error) {
	return c.paginate(moveTo, n, count)
}

func (c *Collection) paginate(move pageMove, n, count int) (*Future[[]*Record], error) {
	var limitErr error
	f, err := issue(c, func() (*transport.Request, error) {
		if c.settings.Endpoint == "" {
			return nil, ErrNoEndpoint
		}
		p, err := pageParams(c.settings.Params, move, n, count)
		if err != nil {
			limitErr = err
			return nil, err
		}
		c.settings.Params = p
		return c.fetchRequestLocked(), nil
	}, c.extract, c.storeLocked)
	if limitErr != nil {
		return Rejected[[]*Record](limitErr), nil
	}
	return f, err
}

// URLNext is the URL Next(count) would fetch. Parameters are not changed.
// Without a resolvable limit it returns the current URL.
func (c *Collection) URLNext(count int) string {
	return c.pageURL(moveNext, 0, count)
}

// URLPrev is the URL Prev(count) would fetch.
func (c *Collection) URLPrev(count int) string {
	return c.pageURL(movePrev, 0, count)
}

// URLPage is the URL Page(n, count) would fetch.
func (c *Collection) URLPage(n, count int) string {
	return c.pageURL(moveTo, n, count)
}

func (c *Collection) pageURL(move pageMove, n, count int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := pageParams(c.settings.Params, move, n, count)
	if err != nil {
		return c.urlLocked(c.settings.Params)
	}
	return c.urlLocked(p)
}
