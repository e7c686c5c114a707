package storage

import "errors"

// ErrPortfolioNotFound is returned when the named portfolio does not exist.
var ErrPortfolioNotFound = errors.New("portfolio not found")

// ErrPortfolioExists is returned when creating a portfolio whose name is taken.
var ErrPortfolioExists = errors.New("portfolio name already exists")

// ErrPositionNotFound is returned when a position ID is not in the portfolio.
var ErrPositionNotFound = errors.New("position not found")
