package client

import (
	"fmt"
	"strings"
)

// BoardType is the category a board post belongs to.
type BoardType string

const (
	BoardBandPromotion      BoardType = "BAND_PROMOTION"
	BoardPerformanceInfo    BoardType = "PERFORMANCE_INFO"
	BoardMemberRecruitment  BoardType = "MEMBER_RECRUITMENT"
	BoardBandMatching       BoardType = "BAND_MATCHING"
	BoardSessionRecruitment BoardType = "SESSION_RECRUITMENT"
	BoardFree               BoardType = "FREE"
)

// BoardTypes lists every category the server accepts.
var BoardTypes = []BoardType{
	BoardBandPromotion,
	BoardPerformanceInfo,
	BoardMemberRecruitment,
	BoardBandMatching,
	BoardSessionRecruitment,
	BoardFree,
}

// ParseBoardType accepts a board type in any case, with dashes or underscores.
func ParseBoardType(s string) (BoardType, error) {
	norm := BoardType(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	for _, bt := range BoardTypes {
		if bt == norm {
			return bt, nil
		}
	}
	return "", fmt.Errorf("unknown board type %q", s)
}

// User is the account returned by the login endpoint.
type User struct {
	ID              int64  `json:"id"`
	Email           string `json:"email"`
	NickName        string `json:"nickName"`
	Role            string `json:"role"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
	AccessToken     string `json:"accessToken,omitempty"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest is the body of POST /signup.
type SignupRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	NickName         string `json:"nickName"`
	PhoneNumber      string `json:"phoneNumber"`
	VerificationCode string `json:"verificationCode"`
}

// FindEmailRequest is the body of POST /auth/findEmail.
type FindEmailRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

// ResetPasswordRequest is the body of POST /auth/resetPassword.
type ResetPasswordRequest struct {
	Email            string `json:"email"`
	VerificationCode string `json:"verificationCode"`
	Password         string `json:"password"`
}

// BoardRequest is the JSON part of a board create or update form.
type BoardRequest struct {
	Title         string    `json:"title"`
	Text          string    `json:"text"`
	BoardType     BoardType `json:"boardType"`
	DeleteFileIDs []int64   `json:"deleteFileIds,omitempty"`
}

// Board is a single post.
type Board struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"userId"`
	UserName   string    `json:"userName"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	BoardType  BoardType `json:"boardType"`
	ViewCount  int64     `json:"viewCount"`
	FileURLs   []string  `json:"fileUrls"`
	CreatedAt  string    `json:"createdAt"`
	ModifiedAt string    `json:"modifiedAt"`
}

// BoardPage is one page of the board listing.
type BoardPage struct {
	Content       []Board `json:"content"`
	TotalElements int64   `json:"totalElements"`
	TotalPages    int     `json:"totalPages"`
	Size          int     `json:"size"`
	Number        int     `json:"number"`
}

// Comment is a reply under a board post.
type Comment struct {
	ID         int64  `json:"id"`
	BoardID    int64  `json:"boardId"`
	UserName   string `json:"userName"`
	Text       string `json:"text"`
	CreatedAt  string `json:"createdAt"`
	ModifiedAt string `json:"modifiedAt"`
}

// ChatMessage is a message in a one-to-one chat room.
type ChatMessage struct {
	ID             string `json:"id"`
	RoomID         string `json:"roomId"`
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
	SenderNickName string `json:"senderNickName"`
	Content        string `json:"content"`
	CreatedAt      string `json:"createdAt"`
	Type           string `json:"type"`
	IsRead         bool   `json:"isRead"`
}

// ChatRoom summarizes a conversation with another user.
type ChatRoom struct {
	RoomID            string `json:"roomId"`
	OtherUserID       int64  `json:"otherUserId"`
	OtherUserNickName string `json:"otherUserNickName"`
	LastMessage       string `json:"lastMessage,omitempty"`
	LastMessageTime   string `json:"lastMessageTime,omitempty"`
	UnreadCount       int    `json:"unreadCount"`
}

// ProfileUpdate is the JSON part of a profile edit form. Empty fields are left unchanged.
type ProfileUpdate struct {
	NickName         string   `json:"nickName,omitempty"`
	Bio              string   `json:"bio,omitempty"`
	InterestedGenres []string `json:"interestedGenres,omitempty"`
	Instruments      []string `json:"instruments,omitempty"`
}

// UserProfile is the public profile of a user.
type UserProfile struct {
	ID               int64    `json:"id"`
	Email            string   `json:"email"`
	NickName         string   `json:"nickName"`
	ProfileImageURL  string   `json:"profileImageUrl,omitempty"`
	Bio              string   `json:"bio,omitempty"`
	InterestedGenres []string `json:"interestedGenres,omitempty"`
	Instruments      []string `json:"instruments,omitempty"`
	CreatedAt        string   `json:"createdAt"`
	ModifiedAt       string   `json:"modifiedAt"`
}
