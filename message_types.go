package ussh

// msgType ties each message struct in messages.go to its wire type byte,
// so sendMsg never needs a side table or naming convention to guess it.

func (*disconnectMsg) msgType() uint8     { return msgDisconnect }
func (*serviceRequestMsg) msgType() uint8 { return msgServiceRequest }
func (*serviceAcceptMsg) msgType() uint8  { return msgServiceAccept }

func (*kexInitMsg) msgType() uint8    { return msgKexInit }
func (*newKeysMsg) msgType() uint8    { return msgNewKeys }
func (*kexDHInitMsg) msgType() uint8  { return msgKexDHInit }
func (*kexDHReplyMsg) msgType() uint8 { return msgKexDHReply }

func (*userAuthRequestMsg) msgType() uint8 { return msgUserAuthRequest }
func (*userAuthFailureMsg) msgType() uint8 { return msgUserAuthFailure }
func (*userAuthSuccessMsg) msgType() uint8 { return msgUserAuthSuccess }
func (*userAuthBannerMsg) msgType() uint8  { return msgUserAuthBanner }
func (*userAuthPubKeyOkMsg) msgType() uint8 { return msgUserAuthPubKeyOk }

func (*globalRequestMsg) msgType() uint8        { return msgGlobalRequest }
func (*globalRequestSuccessMsg) msgType() uint8 { return msgRequestSuccess }
func (*globalRequestFailureMsg) msgType() uint8 { return msgRequestFailure }

func (*channelOpenMsg) msgType() uint8           { return msgChannelOpen }
func (*channelOpenConfirmMsg) msgType() uint8    { return msgChannelOpenConfirm }
func (*channelOpenFailureMsg) msgType() uint8    { return msgChannelOpenFailure }
func (*channelWindowAdjustMsg) msgType() uint8   { return msgChannelWindowAdjust }
func (*channelDataMsg) msgType() uint8           { return msgChannelData }
func (*channelEOFMsg) msgType() uint8            { return msgChannelEOF }
func (*channelCloseMsg) msgType() uint8          { return msgChannelClose }
func (*channelRequestMsg) msgType() uint8        { return msgChannelRequest }
func (*channelRequestSuccessMsg) msgType() uint8 { return msgChannelSuccess }
func (*channelRequestFailureMsg) msgType() uint8 { return msgChannelFailure }
