package document

// Project builds the response item for a hit. Display text is cut to
// displayLen runes and never includes extracted or reference text.
func Project(src Source, namedIndex string, score float64, displayLen int) Item {
	req := src.Request
	return Item{
		ID:                req.ID,
		Title:             req.Title,
		DisplayText:       Truncate(req.DisplayText, displayLen),
		Created:           req.Created,
		Modified:          req.Modified,
		ItemType:          req.ItemType,
		Culture:           req.Culture,
		URI:               req.URI,
		DataLocator:       req.DataLocator,
		ReferenceID:       req.ReferenceID,
		BoostFactor:       req.BoostFactor,
		NamedIndex:        namedIndex,
		AccessControlList: req.AccessControlList,
		Categories:        req.Categories,
		VirtualPathNodes:  req.VirtualPathNodes,
		Authors:           req.Authors,
		PublicationStart:  req.PublicationStart,
		PublicationEnd:    req.PublicationEnd,
		ItemStatus:        req.ItemStatus,
		Score:             score,
	}
}
