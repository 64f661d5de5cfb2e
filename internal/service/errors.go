package service

import "errors"

var (
	ErrNotConnected      = errors.New("Please connect your wallet first")
	ErrInvalidBetAmount  = errors.New("Please enter a valid bet amount")
	ErrMarketNotActive   = errors.New("This market is not active")
	ErrBettingClosed     = errors.New("Betting period has ended")
	ErrResolveTooEarly   = errors.New("Market cannot be resolved before resolve date")
	ErrMarketStillActive = errors.New("Market is still active")
	ErrAlreadyClaimed    = errors.New("You have already claimed from this market")
	ErrNotAdmin          = errors.New("Admin access required")
	ErrInvalidSide       = errors.New("Please choose yes or no")
)
